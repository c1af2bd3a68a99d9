package bootstrap

import (
	"context"
	"errors"

	kms "cloud.google.com/go/kms/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"

	"github.com/GregMSThompson/budget-tracker/internal/config"
	"github.com/GregMSThompson/budget-tracker/internal/crypto"
)

// InitVault opens the client behind the configured token vault and returns
// its closer.
func InitVault(ctx context.Context, cfg *config.Config) (crypto.Vault, func() error, error) {
	switch cfg.TokenVault {
	case config.VaultSecretManager:
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return crypto.NewSecretManagerVault(client, cfg.ProjectID), client.Close, nil
	default:
		if cfg.KMSKeyName == "" {
			return nil, nil, errors.New("KMSKEYNAME is required when TOKENVAULT=kms")
		}
		client, err := kms.NewKeyManagementClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return crypto.NewKMSVault(client, cfg.KMSKeyName), client.Close, nil
	}
}
