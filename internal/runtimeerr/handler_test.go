package runtimeerr

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		category taxonomy.Category
		want     int
	}{
		{taxonomy.Authentication, http.StatusUnauthorized},
		{taxonomy.ConfigurationError, http.StatusBadRequest},
		{taxonomy.DatabaseConnectivity, http.StatusServiceUnavailable},
		{taxonomy.NetworkConnectivity, http.StatusBadGateway},
		{taxonomy.RuntimeException, http.StatusInternalServerError},
		{taxonomy.DockerBuild, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.category))
		})
	}
}

func TestIsProductionLike(t *testing.T) {
	for _, env := range []string{"production", "Prod", "STAGING", " staging "} {
		assert.True(t, IsProductionLike(env), env)
	}
	for _, env := range []string{"", "development", "test", "preprod"} {
		assert.False(t, IsProductionLike(env), env)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"unauthorized", fmt.Errorf("call: %w", taxonomy.ErrUnauthorized), KindAuthentication},
		{"timeout", context.DeadlineExceeded, KindTimeout},
		{"database", driver.ErrBadConn, KindDatabase},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, KindNetwork},
		{"dependency", taxonomy.ErrDependencyUnavailable, KindNetwork},
		{"validation", taxonomy.ErrValidation, KindValidation},
		{"configuration", taxonomy.ErrInvalidConfiguration, KindValidation},
		{"operation", taxonomy.ErrInvalidOperation, KindOperation},
		{"other", errors.New("boom"), KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHandle_DevelopmentIncludesDetails(t *testing.T) {
	h := NewHandler(nil, "development")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	out := h.Handle(context.Background(), fmt.Errorf("load user: %w", driver.ErrBadConn), "/users/1", "trace-1")

	assert.Equal(t, http.StatusServiceUnavailable, out.Status)
	resp := out.Response
	assert.False(t, resp.Success)
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error)
	assert.Equal(t, taxonomy.DatabaseConnectivity, resp.Category)
	assert.Equal(t, "load user: driver: bad connection", resp.Message)
	assert.Equal(t, []string{"load user: driver: bad connection"}, resp.Errors)
	assert.Equal(t, fixed, resp.Timestamp)
	assert.Equal(t, "/users/1", resp.RequestPath)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.True(t, resp.RecoveryAttempted)
	assert.False(t, resp.RecoverySuccessful, "database recovery never succeeds")
	assert.NotEmpty(t, resp.ResolutionSuggestions)
}

func TestHandle_ProductionHidesDetails(t *testing.T) {
	h := NewHandler(nil, "production")
	out := h.Handle(context.Background(), errors.New("secret: password=hunter2"), "/", "t")

	assert.Equal(t, http.StatusInternalServerError, out.Status)
	assert.NotContains(t, out.Response.Message, "hunter2")
	assert.Empty(t, out.Response.Errors)
	assert.Nil(t, out.Response.ResolutionSuggestions)
}

func TestHandle_PanickingRecovery(t *testing.T) {
	h := NewHandler(nil, "development")
	h.SetRecovery(KindOperation, func(context.Context, error) Recovery { panic("nope") })

	out := h.Handle(context.Background(), taxonomy.ErrInvalidOperation, "/", "t")
	assert.True(t, out.Recovery.Attempted)
	assert.False(t, out.Recovery.Successful)
}

func TestHandle_NetworkRecoveryRedials(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	h := NewHandler(nil, "development")
	opErr := &net.OpError{Op: "dial", Net: "tcp", Addr: ln.Addr(), Err: errors.New("connection reset")}
	out := h.Handle(context.Background(), opErr, "/", "t")

	assert.Equal(t, http.StatusBadGateway, out.Status)
	assert.True(t, out.Recovery.Successful)
}

func TestWrap_WritesJSON(t *testing.T) {
	h := NewHandler(nil, "development")
	srv := h.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("token expired: %w", taxonomy.ErrUnauthorized)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set(TraceHeader, "abc")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "abc", rec.Header().Get(TraceHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "AUTHENTICATION_FAILED", body["error"])
	assert.Equal(t, "Authentication", body["category"])
	assert.Equal(t, "/api/orders", body["requestPath"])
	assert.Equal(t, "abc", body["traceId"])
	assert.Equal(t, true, body["recoveryAttempted"])
	assert.Equal(t, true, body["recoverySuccessful"])
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	h := NewHandler(nil, "staging")
	srv := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader), "a trace id is generated when none is supplied")

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INTERNAL_ERROR", resp.Error)
	assert.NotContains(t, resp.Message, "nil map")
}

func TestWrap_NoErrorPassesThrough(t *testing.T) {
	h := NewHandler(nil, "development")
	srv := h.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
