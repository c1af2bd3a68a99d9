package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/pkg/logger"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *responseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	}); err != nil {
		log := logger.FromContext(r.Context())
		log.Error("failed to encode error response", "error", err, "status", status, "code", code)
	}
}

// HandleError logs err at the level its classification asks for and writes
// the matching error body.
func (h *responseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	c := errs.Classify(err)
	logger.FromContext(r.Context()).Log(r.Context(), c.Level, "request failed",
		"status", c.Status,
		"code", c.Code,
		"error", err,
		"type", fmt.Sprintf("%T", err),
	)
	h.WriteError(w, r, c.Status, c.Code, c.Message)
}
