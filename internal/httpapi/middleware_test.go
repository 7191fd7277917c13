package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOrigin_NoAllowListReturnsWildcard(t *testing.T) {
	assert.Equal(t, "*", resolveOrigin(nil, "https://example.com"))
}

func TestResolveOrigin_MatchedOriginEchoed(t *testing.T) {
	allowed := []string{"https://a.example.com", "https://b.example.com"}
	assert.Equal(t, "https://b.example.com", resolveOrigin(allowed, "https://b.example.com"))
}

func TestResolveOrigin_UnmatchedOriginFallsBackToFirstAllowed(t *testing.T) {
	allowed := []string{"https://a.example.com"}
	assert.Equal(t, "https://a.example.com", resolveOrigin(allowed, "https://evil.example.com"))
}

func TestCORSMiddleware_ShortCircuitsPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	mw := corsMiddleware([]string{"https://a.example.com"})(next)

	req := httptest.NewRequest(http.MethodOptions, "/search/semantic", nil)
	req.Header.Set("Origin", "https://a.example.com")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://a.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestCORSMiddleware_PassesThroughNonPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	mw := corsMiddleware(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/search/semantic", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
