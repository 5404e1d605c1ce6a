package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogging_PassesThroughAndRecordsStatus(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})

	h := Logging(next)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/session", nil)

	h.ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestLogging_DefaultsStatusTo200WhenNotWritten(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	})

	h := Logging(next)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
