package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/store"
)

func TestCodeFor(t *testing.T) {
	cases := map[error]string{
		store.ErrTargetExists:                          CodeConflict,
		fmt.Errorf("add: %w", store.ErrTargetNotFound): CodeNotFound,
		core.ErrNoAvailableCredentials:                 CodeServiceUnavailable,
		fmt.Errorf("alice: %w", core.ErrRateLimited):   CodeRateLimited,
		core.ErrTooManyLoginAttempts:                   CodeExternalService,
		fmt.Errorf("disk full"):                        CodeDatabase,
	}
	for err, code := range cases {
		require.Equal(t, code, CodeFor(err), err.Error())
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	require.Equal(t, http.StatusConflict, HTTPStatusFromCode(CodeConflict))
	require.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(CodeDatabase))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_NEW"))
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(nil)
	require.Equal(t, CodeInternal, env.Code)

	original := NewNotFoundError("missing")
	require.Same(t, original, EnsureEnvelope(original))
	require.Same(t, original, EnsureEnvelope(fmt.Errorf("wrapped: %w", original)))

	env = EnsureEnvelope(fmt.Errorf("boom"))
	require.Equal(t, CodeInternal, env.Code)
	require.Equal(t, "boom", env.Context["wrapped_error"])
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/targets", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, FromDomain(context.Background(), store.ErrTargetExists, "@alice is already being monitored"))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, CodeConflict, body.Error.Code)
	require.Equal(t, "@alice is already being monitored", body.Error.Message)
	require.NotEmpty(t, body.Error.RequestID)
	require.Equal(t, store.ErrTargetExists.Error(), body.Error.Details["wrapped_error"])
}
