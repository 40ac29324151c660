// Package runtimeerr turns errors raised while serving HTTP requests into
// classified, structured JSON responses with a bounded recovery attempt.
package runtimeerr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// TraceHeader carries the request trace ID in and out.
const TraceHeader = "X-Trace-Id"

// Response is the JSON body written for every handled error.
type Response struct {
	Success               bool              `json:"success"`
	Error                 string            `json:"error"`
	Message               string            `json:"message"`
	Category              taxonomy.Category `json:"category"`
	Errors                []string          `json:"errors"`
	Timestamp             time.Time         `json:"timestamp"`
	RequestPath           string            `json:"requestPath"`
	TraceID               string            `json:"traceId"`
	RecoveryAttempted     bool              `json:"recoveryAttempted"`
	RecoverySuccessful    bool              `json:"recoverySuccessful"`
	ResolutionSuggestions []string          `json:"resolutionSuggestions,omitempty"`
}

// StatusCode maps a category onto an HTTP status.
func StatusCode(c taxonomy.Category) int {
	switch c {
	case taxonomy.Authentication:
		return http.StatusUnauthorized
	case taxonomy.ConfigurationError:
		return http.StatusBadRequest
	case taxonomy.DatabaseConnectivity:
		return http.StatusServiceUnavailable
	case taxonomy.NetworkConnectivity:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode is the machine-readable error code for a category.
func ErrorCode(c taxonomy.Category) string {
	switch c {
	case taxonomy.Authentication:
		return "AUTHENTICATION_FAILED"
	case taxonomy.ConfigurationError:
		return "INVALID_REQUEST"
	case taxonomy.DatabaseConnectivity:
		return "SERVICE_UNAVAILABLE"
	case taxonomy.NetworkConnectivity:
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

var publicMessages = map[taxonomy.Category]string{
	taxonomy.Authentication:       "Authentication is required to access this resource.",
	taxonomy.ConfigurationError:   "The request could not be processed.",
	taxonomy.DatabaseConnectivity: "The service is temporarily unavailable. Please try again later.",
	taxonomy.NetworkConnectivity:  "An upstream service is unavailable. Please try again later.",
}

func publicMessage(c taxonomy.Category) string {
	if m, ok := publicMessages[c]; ok {
		return m
	}
	return "An unexpected error occurred."
}

// IsProductionLike reports whether env hides error details.
func IsProductionLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

// Handler classifies request errors and writes structured responses.
type Handler struct {
	classifier  *taxonomy.Classifier
	environment string
	recoveries  map[Kind]RecoveryFunc
	now         func() time.Time
}

// NewHandler creates a handler with the default recovery handlers.
func NewHandler(classifier *taxonomy.Classifier, environment string) *Handler {
	if classifier == nil {
		classifier = taxonomy.NewClassifier()
	}
	return &Handler{
		classifier:  classifier,
		environment: environment,
		recoveries:  DefaultRecoveries(nil, 0),
		now:         time.Now,
	}
}

// SetRecovery replaces the recovery handler for kind. A nil fn disables
// recovery for that kind.
func (h *Handler) SetRecovery(kind Kind, fn RecoveryFunc) {
	if fn == nil {
		delete(h.recoveries, kind)
		return
	}
	h.recoveries[kind] = fn
}

// Outcome is the result of handling one error.
type Outcome struct {
	Status   int
	Error    taxonomy.BuildError
	Recovery Recovery
	Response Response
}

// Handle classifies err, attempts recovery and builds the response. It
// writes nothing.
func (h *Handler) Handle(ctx context.Context, err error, path, traceID string) Outcome {
	be := h.classifier.ClassifyError(path, err)
	rec := h.attemptRecovery(ctx, err)

	production := IsProductionLike(h.environment)
	resp := Response{
		Success:            false,
		Error:              ErrorCode(be.Category),
		Message:            publicMessage(be.Category),
		Category:           be.Category,
		Errors:             []string{},
		Timestamp:          h.now().UTC(),
		RequestPath:        path,
		TraceID:            traceID,
		RecoveryAttempted:  rec.Attempted,
		RecoverySuccessful: rec.Successful,
	}
	if !production {
		resp.Message = err.Error()
		resp.Errors = []string{err.Error()}
		resp.ResolutionSuggestions = suggestions(be, rec)
	}

	return Outcome{Status: StatusCode(be.Category), Error: be, Recovery: rec, Response: resp}
}

func (h *Handler) attemptRecovery(ctx context.Context, err error) (rec Recovery) {
	fn, ok := h.recoveries[KindOf(err)]
	if !ok {
		return Recovery{}
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("recovery handler panicked", "panic", p)
			rec = Recovery{Attempted: true, Action: fmt.Sprintf("recovery failed: %v", p)}
		}
	}()
	return fn(ctx, err)
}

func suggestions(be taxonomy.BuildError, rec Recovery) []string {
	var out []string
	if be.ResolutionHint != "" {
		out = append(out, be.ResolutionHint)
	}
	if rec.Action != "" {
		out = append(out, rec.Action)
	}
	return out
}

// Write handles err and writes the JSON response for r.
func (h *Handler) Write(w http.ResponseWriter, r *http.Request, err error) Outcome {
	traceID := r.Header.Get(TraceHeader)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	out := h.Handle(r.Context(), err, r.URL.Path, traceID)
	slog.Warn("request failed",
		"path", r.URL.Path,
		"trace_id", traceID,
		"category", out.Error.Category,
		"severity", out.Error.Severity,
		"status", out.Status,
		"recovered", out.Recovery.Successful,
		"err", err)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(TraceHeader, traceID)
	w.WriteHeader(out.Status)
	if encErr := json.NewEncoder(w).Encode(out.Response); encErr != nil {
		slog.Error("write error response", "err", encErr)
	}
	return out
}

// Wrap adapts a handler that returns errors.
func (h *Handler) Wrap(fn func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Write(w, r, err)
		}
	}))
}

// Middleware recovers panics from next and answers them with a structured
// error. http.ErrAbortHandler is re-raised.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			err, ok := p.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", p)
			}
			slog.Debug("handler panicked", "path", r.URL.Path, "stack", string(debug.Stack()))
			h.Write(w, r, err)
		}()
		next.ServeHTTP(w, r)
	})
}
