package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GregMSThompson/budget-tracker/internal/errs"
	"github.com/GregMSThompson/budget-tracker/pkg/helpers"
)

func newRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/", nil).WithContext(helpers.TestCtx())
}

func TestWriteSuccessEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	New(nil).WriteSuccess(rr, newRequest(), http.StatusCreated, map[string]int{"added": 3})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"added":3}}`, rr.Body.String())
}

func TestHandleErrorClassifies(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", errs.NewNotFoundError("budget not found"), http.StatusNotFound, "not_found"},
		{"wrapped validation", fmt.Errorf("decode: %w", errs.NewValidationError("bad")), http.StatusBadRequest, "invalid_input"},
		{"nothing to sync", errs.NewNothingToSyncError("no linked accounts"), http.StatusBadRequest, "nothing_to_sync"},
		{"credential", errs.NewCredentialError("item-1", "ITEM_ERROR", "ITEM_LOGIN_REQUIRED", "login"), http.StatusConflict, "login_required"},
		{"transient", errs.NewExternalServiceError("plaid", "rate limited", true, nil), http.StatusServiceUnavailable, "service_unavailable"},
		{"database", errs.NewDatabaseError("read", "boom", nil), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			New(nil).HandleError(rr, newRequest(), tt.err)

			require.Equal(t, tt.status, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Message, "boom")
		})
	}
}
