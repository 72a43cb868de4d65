package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	h := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/operations", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/operations", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	h := newTestAPI(t).Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "manager", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "attempt %d", i+1)
		}
	}

	// another client keeps its own budget
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type brokenKV struct{}

func (brokenKV) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (brokenKV) Set(context.Context, string, string, time.Duration) error {
	return nil
}

func (brokenKV) Delete(context.Context, string) error {
	return nil
}

func TestAttemptLimiterFailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	limiter := newAttemptLimiter(brokenKV{}, "login:", 1, time.Minute, logger)

	assert.True(t, limiter.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, limiter.Allow(context.Background(), "10.0.0.1"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "attempt limiter unavailable", hook.LastEntry().Message)
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPersistenceErrorsAreHidden(t *testing.T) {
	logger, hook := test.NewNullLogger()
	a := &API{log: logger}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	rec := httptest.NewRecorder()

	a.fail(rec, req, domain.Persistence("list history", errors.New("pq: relation does not exist")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "list history: persistence failure", body["error"])
	assert.NotContains(t, body["error"], "relation")
	assert.Equal(t, "persistence", body["kind"])
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request failed", hook.LastEntry().Message)
}

func TestUntypedServerErrorsStayGeneric(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a := &API{log: logger}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	rec := httptest.NewRecorder()

	a.fail(rec, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "internal server error", body["error"])
	_, hasKind := body["kind"]
	assert.False(t, hasKind)
}

func TestStatusForKind(t *testing.T) {
	cases := map[string]int{
		"validation":         http.StatusBadRequest,
		"not_found":          http.StatusNotFound,
		"conflict":           http.StatusConflict,
		"ambiguous_snapshot": http.StatusUnprocessableEntity,
		"persistence":        http.StatusInternalServerError,
		"":                   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(kind), kind)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	assert.Equal(t, 200, parsePositiveLimit("9999", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("invalid", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("-3", 50, 200))
}
