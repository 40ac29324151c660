package taxonomy

import (
	"cmp"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"net"
	"os"
	"slices"
	"strings"
)

// Classifier maps raw text and Go errors onto the taxonomy. It is safe for
// concurrent use once constructed.
type Classifier struct {
	patterns []Pattern
}

// Option configures a Classifier.
type Option func(*[]Pattern)

// WithPatterns adds custom patterns on top of the defaults.
func WithPatterns(patterns ...Pattern) Option {
	return func(p *[]Pattern) {
		*p = append(append([]Pattern{}, patterns...), *p...)
	}
}

// NewClassifier builds a classifier from the default pattern table plus any
// options. Patterns are ordered longest substring first so that specific
// phrases ("version conflict") always win over generic ones ("package").
// Ties keep declaration order, custom patterns first.
func NewClassifier(opts ...Option) *Classifier {
	patterns := DefaultPatterns()
	for _, opt := range opts {
		opt(&patterns)
	}

	ordered := make([]Pattern, 0, len(patterns))
	for _, p := range patterns {
		p.Match = strings.ToLower(p.Match)
		if p.Match != "" {
			ordered = append(ordered, p)
		}
	}
	slices.SortStableFunc(ordered, func(a, b Pattern) int {
		return cmp.Compare(len(b.Match), len(a.Match))
	})

	return &Classifier{patterns: ordered}
}

// Patterns returns the ordered pattern table.
func (c *Classifier) Patterns() []Pattern {
	return slices.Clone(c.patterns)
}

// Classify turns one line (or block) of raw text into a BuildError.
func (c *Classifier) Classify(source, text string) BuildError {
	lower := strings.ToLower(text)
	category := c.Category(lower)
	return New(category, severityFor(lower, category), source, strings.TrimSpace(text))
}

// Category returns the category for already lower-cased text.
func (c *Classifier) Category(lower string) Category {
	for _, p := range c.patterns {
		if strings.Contains(lower, p.Match) {
			return p.Category
		}
	}
	return fallbackCategory(lower)
}

// MatchCategory is like Category but reports whether a pattern (not a
// fallback heuristic) produced the result.
func (c *Classifier) MatchCategory(lower string) (Category, bool) {
	for _, p := range c.patterns {
		if strings.Contains(lower, p.Match) {
			return p.Category, true
		}
	}
	return Unknown, false
}

func fallbackCategory(lower string) Category {
	switch {
	case containsAny(lower, "reference", "assembly"):
		return ProjectReference
	case containsAny(lower, "package", "nuget", "module"):
		return PackageReference
	case containsAny(lower, "syntax", "expected"):
		return CompilationError
	case containsAny(lower, "framework", "target"):
		return FrameworkCompatibility
	default:
		return Unknown
	}
}

var (
	criticalKeywords = []string{"fatal", "critical", "circular dependency", "missing assembly"}
	highKeywords     = []string{"error", "failed", "cannot resolve", "not found"}
	mediumKeywords   = []string{"warning", "deprecated"}
)

var defaultSeverity = map[Category]Severity{
	Unknown:                  Low,
	CompilationError:         High,
	PackageReference:         High,
	ProjectReference:         Critical,
	FrameworkCompatibility:   High,
	DockerBuild:              High,
	DatabaseConnectivity:     Critical,
	Authentication:           High,
	NetworkConnectivity:      High,
	EnvironmentConfiguration: Medium,
	ConfigurationError:       Medium,
	RuntimeException:         Medium,
	SystemError:              Critical,
}

// DefaultSeverity returns the fallback severity for a category.
func DefaultSeverity(c Category) Severity {
	if s, ok := defaultSeverity[c]; ok {
		return s
	}
	return Low
}

func severityFor(lower string, category Category) Severity {
	switch {
	case containsAny(lower, criticalKeywords...):
		return Critical
	case containsAny(lower, highKeywords...):
		return High
	case containsAny(lower, mediumKeywords...):
		return Medium
	default:
		return DefaultSeverity(category)
	}
}

var exceptionSeverity = map[Category]Severity{
	Authentication:           High,
	NetworkConnectivity:      High,
	DatabaseConnectivity:     Critical,
	EnvironmentConfiguration: High,
	ConfigurationError:       High,
	RuntimeException:         Medium,
}

// ClassifyError classifies a Go error by its type and sentinel chain rather
// than its text. Anything unrecognised is a RuntimeException.
func (c *Classifier) ClassifyError(source string, err error) BuildError {
	if err == nil {
		return New(Unknown, Low, source, "no error")
	}

	var be BuildError
	if errors.As(err, &be) {
		return be
	}

	category := ErrorCategory(err)
	severity, ok := exceptionSeverity[category]
	if !ok {
		severity = Medium
	}
	return New(category, severity, source, err.Error()).WithCause(err)
}

// ErrorCategory maps an error value onto a category.
func ErrorCategory(err error) Category {
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError

	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, fs.ErrPermission):
		return Authentication
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return NetworkConnectivity
	case errors.As(err, &netErr) && netErr.Timeout():
		return NetworkConnectivity
	case errors.As(err, &opErr), errors.As(err, &dnsErr), errors.Is(err, ErrDependencyUnavailable):
		return NetworkConnectivity
	case errors.Is(err, ErrDatabaseUnavailable), errors.Is(err, sql.ErrConnDone),
		errors.Is(err, sql.ErrTxDone), errors.Is(err, driver.ErrBadConn):
		return DatabaseConnectivity
	case errors.Is(err, fs.ErrNotExist):
		return EnvironmentConfiguration
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, ErrValidation):
		return ConfigurationError
	default:
		return RuntimeException
	}
}

// IsTimeout reports whether err represents a timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
}

// ExtractErrorLines returns the trimmed, non-empty lines of text that mention
// "error", "failed" or "exception", case-insensitively.
func ExtractErrorLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if containsAny(strings.ToLower(trimmed), "error", "failed", "exception") {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
