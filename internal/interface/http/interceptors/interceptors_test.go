package interceptors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arkade-os/pegd/pkg/errors"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetails {
	var details ErrorDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&details))
	return details
}

func TestWriteError(t *testing.T) {
	t.Run("typed error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.COLLATERAL_SHORTFALL.New("short").WithMetadata(
			errors.CollateralShortfallMetadata{
				Locked: "100000000", Required: "110000000", Shortfall: "10000000",
			},
		))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		details := decodeError(t, rec)
		require.Equal(t, "COLLATERAL_SHORTFALL", details.Name)
		require.Equal(t, errors.COLLATERAL_SHORTFALL.Code, details.Code)
		require.Equal(t, "10000000", details.Metadata["shortfall"])
	})

	t.Run("wrapped typed error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("lock: %w", errors.INTENT_NOT_FOUND.New("intent x")))

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "INTENT_NOT_FOUND", decodeError(t, rec).Name)
	})

	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("boom"))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		details := decodeError(t, rec)
		require.Equal(t, "INTERNAL_ERROR", details.Name)
		require.Contains(t, details.Message, "boom")
	})
}

func TestPanicRecovery(t *testing.T) {
	handler := PanicRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("unexpected")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/supply", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, decodeError(t, rec).Message, "something went wrong")
}

func TestAdminAuth(t *testing.T) {
	testCases := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"disabled", "", "", http.StatusOK},
		{"valid token", "secret", "secret", http.StatusOK},
		{"missing token", "secret", "", http.StatusUnauthorized},
		{"invalid token", "secret", "guess", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/admin/mint", nil)
			if tc.header != "" {
				req.Header.Set(AdminTokenHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			AdminAuth(tc.token)(okHandler()).ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestReadiness(t *testing.T) {
	readiness := NewReadinessService()
	handler := readiness.Middleware(okHandler())

	serve := func(path string) int {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusServiceUnavailable, serve("/v1/attestation/latest"))
	require.Equal(t, http.StatusOK, serve("/healthz"))

	readiness.MarkAppServiceStarted()
	require.True(t, readiness.IsReady())
	require.Equal(t, http.StatusOK, serve("/v1/attestation/latest"))

	readiness.MarkAppServiceStopped()
	require.Equal(t, http.StatusServiceUnavailable, serve("/v1/attestation/latest"))

	var nilReadiness *ReadinessService
	require.NoError(t, nilReadiness.Check("/v1/supply"))
}
