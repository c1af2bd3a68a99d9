package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/dto"
)

type TokenVault string

const (
	VaultKMS           TokenVault = "kms"
	VaultSecretManager TokenVault = "secretmanager"
)

type Config struct {
	ProjectID          string
	Region             string
	LogLevel           string
	Port               string
	PlaidClientID      string
	PlaidSecret        string
	PlaidEnvironment   dto.PlaidEnvironment
	PlaidCountryCodes  []string
	PlaidWebhookURL    string
	PlaidWebhookSecret string
	PlaidRateLimit     float64
	PlaidPageSize      int32
	PlaidPageTimeout   time.Duration
	SyncLookbackDays   int
	SyncConcurrency    int
	WebhookConcurrency int
	TokenVault         TokenVault
	KMSKeyName         string
}

func New() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config from getenv, applying defaults for unset values.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ProjectID:          getenv("PROJECTID"),
		Region:             getenv("REGION"),
		LogLevel:           getenv("LOGLEVEL"),
		Port:               valueOr(getenv("PORT"), "8080"),
		PlaidClientID:      getenv("PLAIDCLIENTID"),
		PlaidSecret:        getenv("PLAIDSECRET"),
		PlaidEnvironment:   getPlaidEnvironment(getenv("PLAIDENVIRONMENT")),
		PlaidCountryCodes:  splitList(valueOr(getenv("PLAIDCOUNTRYCODES"), "US")),
		PlaidWebhookURL:    getenv("PLAIDWEBHOOKURL"),
		PlaidWebhookSecret: getenv("PLAIDWEBHOOKSECRET"),
		TokenVault:         getTokenVault(getenv("TOKENVAULT")),
		KMSKeyName:         getenv("KMSKEYNAME"),
	}

	var err error
	if cfg.PlaidRateLimit, err = parseFloat(getenv, "PLAIDRATELIMIT", 5); err != nil {
		return nil, err
	}
	pageSize, err := parseInt(getenv, "PLAIDPAGESIZE", 500)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 || pageSize > 500 {
		return nil, fmt.Errorf("PLAIDPAGESIZE must be between 1 and 500, got %d", pageSize)
	}
	cfg.PlaidPageSize = int32(pageSize)
	if cfg.PlaidPageTimeout, err = parseDuration(getenv, "PLAIDPAGETIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SyncLookbackDays, err = parseInt(getenv, "SYNCLOOKBACKDAYS", 30); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = parseInt(getenv, "SYNCCONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency < 1 {
		cfg.SyncConcurrency = 1
	}
	if cfg.WebhookConcurrency, err = parseInt(getenv, "WEBHOOKCONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.WebhookConcurrency < 1 {
		cfg.WebhookConcurrency = 1
	}
	return cfg, nil
}

func getPlaidEnvironment(env string) dto.PlaidEnvironment {
	switch strings.ToLower(env) {
	case "sandbox":
		return dto.PlaidSandbox
	default: // "production"
		return dto.PlaidProduction
	}
}

func getTokenVault(v string) TokenVault {
	switch strings.ToLower(v) {
	case "secretmanager":
		return VaultSecretManager
	default:
		return VaultKMS
	}
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

func parseInt(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseFloat(getenv func(string) string, key string, def float64) (float64, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
