package errs

import (
	"errors"
	"log/slog"
	"net/http"
)

// Classification is how an error surfaces over HTTP.
type Classification struct {
	Status  int
	Code    string
	Message string
	Level   slog.Level
}

// Classify maps an error chain to the status, code and log level the API
// reports for it. Internal details never reach Message for 5xx errors.
func Classify(err error) Classification {
	var (
		notFound   *NotFoundError
		exists     *AlreadyExistsError
		validation *ValidationError
		nothing    *NothingToSyncError
		credential *CredentialError
		external   *ExternalServiceError
		database   *DatabaseError
		encryption *EncryptionError
	)

	switch {
	case errors.As(err, &notFound):
		return Classification{http.StatusNotFound, "not_found", notFound.Message, slog.LevelWarn}
	case errors.As(err, &exists):
		return Classification{http.StatusConflict, "already_exists", exists.Message, slog.LevelWarn}
	case errors.As(err, &validation):
		return Classification{http.StatusBadRequest, "invalid_input", validation.Message, slog.LevelWarn}
	case errors.As(err, &nothing):
		return Classification{http.StatusBadRequest, "nothing_to_sync", nothing.Message, slog.LevelWarn}
	case errors.As(err, &credential):
		msg := credential.DisplayMessage
		if msg == "" {
			msg = "Bank connection requires re-authentication"
		}
		return Classification{http.StatusConflict, "login_required", msg, slog.LevelWarn}
	case errors.As(err, &external):
		if external.Transient {
			return Classification{http.StatusServiceUnavailable, "service_unavailable", "Service temporarily unavailable", slog.LevelWarn}
		}
		return Classification{http.StatusBadGateway, "service_unavailable", "Service temporarily unavailable", slog.LevelError}
	case errors.As(err, &database), errors.As(err, &encryption):
		return Classification{http.StatusInternalServerError, "internal_error", "An error occurred", slog.LevelError}
	default:
		return Classification{http.StatusInternalServerError, "internal_error", "An unexpected error occurred", slog.LevelError}
	}
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsAlreadyExists(err error) bool {
	var e *AlreadyExistsError
	return errors.As(err, &e)
}

// IsTransient reports whether a later retry of the same call may succeed.
func IsTransient(err error) bool {
	var e *ExternalServiceError
	return errors.As(err, &e) && e.Transient
}
