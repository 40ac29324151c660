package taxonomy

import (
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sentinel errors recognised by ClassifyError. Callers wrap them with %w to
// steer classification of errors that carry no better type information.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDatabaseUnavailable   = errors.New("database unavailable")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrValidation            = errors.New("validation failed")
	ErrInvalidOperation      = errors.New("invalid operation")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Well-known AdditionalData keys. Producers set them so resolution
// strategies know where to act.
const (
	DataDir       = "dir"
	DataEndpoint  = "endpoint"
	DataVariable  = "variable"
	DataGoVersion = "go_version"
	DataContext   = "context"
	DataStage     = "stage"
	DataCycle     = "cycle"
	DataMissing   = "missing_path"
	DataModule    = "module"
	DataVersion   = "version"
)

// BuildError is one classified problem. Values are treated as immutable once
// created; the With* helpers return modified copies.
type BuildError struct {
	ID             string         `json:"id"`
	Category       Category       `json:"category"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Source         string         `json:"source,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ResolutionHint string         `json:"resolutionHint,omitempty"`
	Cause          error          `json:"-"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// New creates a BuildError with an explicit category and severity. The
// resolution hint is filled from the default hint table.
func New(category Category, severity Severity, source, message string) BuildError {
	return BuildError{
		ID:             newID(),
		Category:       category,
		Severity:       severity,
		Message:        message,
		Source:         source,
		Timestamp:      time.Now(),
		ResolutionHint: ResolutionHint(category),
	}
}

// SystemFault converts a fault in the validation logic itself into a
// SystemError/Critical BuildError.
func SystemFault(source string, err error) BuildError {
	be := New(SystemError, Critical, source, fmt.Sprintf("internal validation fault: %v", err))
	be.Cause = err
	return be
}

// Error implements the error interface.
func (e BuildError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s/%s] %s: %s", e.Category, e.Severity, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Category, e.Severity, e.Message)
}

// Unwrap returns the underlying fault, if any.
func (e BuildError) Unwrap() error {
	return e.Cause
}

// WithData returns a copy of e with key set in AdditionalData.
func (e BuildError) WithData(key string, value any) BuildError {
	data := make(map[string]any, len(e.AdditionalData)+1)
	maps.Copy(data, e.AdditionalData)
	data[key] = value
	e.AdditionalData = data
	return e
}

// WithCause returns a copy of e carrying cause.
func (e BuildError) WithCause(cause error) BuildError {
	e.Cause = cause
	return e
}

// Data returns the string value stored under key, or "".
func (e BuildError) Data(key string) string {
	v, ok := e.AdditionalData[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
