package plaidclient

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/plaid/plaid-go/v24/plaid"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
)

// Item error codes that need the user to go back through Link.
var credentialCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED":     true,
	"INVALID_CREDENTIALS":     true,
	"INVALID_MFA":             true,
	"ITEM_LOCKED":             true,
	"USER_SETUP_REQUIRED":     true,
	"MFA_NOT_SUPPORTED":       true,
	"NO_ACCOUNTS":             true,
	"ACCESS_NOT_GRANTED":      true,
	"INVALID_ACCESS_TOKEN":    true,
	"ITEM_NOT_FOUND":          true,
	"USER_PERMISSION_REVOKED": true,
}

// Error types Plaid documents as retryable.
var transientTypes = map[string]bool{
	"RATE_LIMIT_EXCEEDED": true,
	"API_ERROR":           true,
	"INSTITUTION_ERROR":   true,
}

// classify turns a Plaid client error into an internal/errs error.
func classify(resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if isNetwork(err) {
		return errs.NewExternalServiceError(serviceName, "request failed", true, err)
	}
	pe, perr := plaid.ToPlaidError(err)
	if perr != nil {
		return errs.NewExternalServiceError(serviceName, "unexpected response", transientStatus(statusOf(resp)), err)
	}
	return classifyPlaid(apiError{
		errorType:      string(pe.GetErrorType()),
		code:           pe.GetErrorCode(),
		message:        pe.GetErrorMessage(),
		displayMessage: pe.GetDisplayMessage(),
		status:         statusOf(resp),
	}, err)
}

type apiError struct {
	errorType      string
	code           string
	message        string
	displayMessage string
	status         int
}

func classifyPlaid(e apiError, cause error) error {
	switch {
	case e.errorType == "ITEM_ERROR" && credentialCodes[e.code],
		e.errorType == "INVALID_INPUT" && credentialCodes[e.code]:
		ce := errs.NewCredentialError("", e.errorType, e.code, e.message)
		ce.DisplayMessage = e.displayMessage
		ce.Status = e.status
		return ce
	case transientTypes[e.errorType], e.code == "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION":
		return errs.NewExternalServiceError(serviceName, e.code, true, cause)
	default:
		return errs.NewExternalServiceError(serviceName, e.code, transientStatus(e.status), cause)
	}
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
