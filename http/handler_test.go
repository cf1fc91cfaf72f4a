package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	HandleHealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReadyCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleReadyCheck(func() bool { return true })(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("not ready", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleReadyCheck(func() bool { return false })(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	HandleVersion("v1.2.3")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", string(body))
}

func TestHandleWithCORS(t *testing.T) {
	var called bool
	h := HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), "https://viewer.example")

	t.Run("allowed origin", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodPost, "/query", nil)
		r.Header.Set("Origin", "https://viewer.example")

		w := httptest.NewRecorder()
		h(w, r)
		require.True(t, called)
		require.Equal(t, "https://viewer.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodPost, "/query", nil)
		r.Header.Set("Origin", "https://other.example")

		w := httptest.NewRecorder()
		h(w, r)
		require.True(t, called)
		require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		called = false
		r := httptest.NewRequest(http.MethodOptions, "/query", nil)
		r.Header.Set("Origin", "https://viewer.example")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		r.Header.Set("Access-Control-Request-Headers", "Authorization")

		w := httptest.NewRecorder()
		h(w, r)
		require.False(t, called)
		require.Equal(t, http.StatusNoContent, w.Code)
		require.Equal(t, "https://viewer.example", w.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, http.MethodPost, w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("any origin", func(t *testing.T) {
		h := HandleWithCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), "*")
		r := httptest.NewRequest(http.MethodGet, "/query", nil)
		r.Header.Set("Origin", "https://other.example")

		w := httptest.NewRecorder()
		h(w, r)
		require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestVerifyAPIKeyHandler(t *testing.T) {
	next := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}

	t.Run("valid bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/query", nil)
		r.Header.Set("Authorization", "Bearer secret")

		w := httptest.NewRecorder()
		VerifyAPIKeyHandler("secret", next)(w, r)
		require.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("valid query token", func(t *testing.T) {
		w := httptest.NewRecorder()
		VerifyAPIKeyHandler("secret", next)(w, httptest.NewRequest(http.MethodGet, "/query?token=secret", nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/query", nil)
		r.Header.Set("Authorization", "Bearer nope")

		w := httptest.NewRecorder()
		VerifyAPIKeyHandler("secret", next)(w, r)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no api key", func(t *testing.T) {
		w := httptest.NewRecorder()
		VerifyAPIKeyHandler("", next)(w, httptest.NewRequest(http.MethodGet, "/query", nil))
		require.Equal(t, http.StatusTeapot, w.Code)
	})
}

func TestMetricsPathFormatter(t *testing.T) {
	require.Equal(t, "/query", MetricsPathFormatter(http.StatusOK, "/query"))
	require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/unknown"))
	require.Empty(t, MetricsPathFormatter(http.StatusBadRequest, "/query"))
}
