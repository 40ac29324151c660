// Package envcheck validates the environment a workspace runs in: required
// variables per concern, database connection string format and the expiry
// of configured certificates.
package envcheck

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Group is a concern whose variables are checked together.
type Group string

const (
	Database       Group = "Database"
	Authentication Group = "Authentication"
	Networking     Group = "Networking"
	SSL            Group = "SSL"
)

// Groups lists the variable groups in check order.
var Groups = []Group{Database, Authentication, Networking, SSL}

// CertificatesCheck is the name of the certificate expiry check.
const CertificatesCheck = "Certificates"

// DefaultExpiryDays is the default warning window before certificate expiry.
const DefaultExpiryDays = 30

// CheckResult is the outcome of one environment check.
type CheckResult struct {
	Name    string                `json:"name"`
	Status  phase.Status          `json:"status"`
	Missing []string              `json:"missing,omitempty"`
	Errors  []taxonomy.BuildError `json:"errors,omitempty"`
}

// ValidationResult aggregates every environment check.
type ValidationResult struct {
	Checks []CheckResult `json:"checks"`
}

// OverallStatus folds the check statuses.
func (r *ValidationResult) OverallStatus() phase.Status {
	statuses := make([]phase.Status, len(r.Checks))
	for i, c := range r.Checks {
		statuses[i] = c.Status
	}
	return phase.Aggregate(statuses...)
}

// Errors returns every error across checks.
func (r *ValidationResult) Errors() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	for _, c := range r.Checks {
		out = append(out, c.Errors...)
	}
	return out
}

// Check returns the named check, if present.
func (r *ValidationResult) Check(name string) (CheckResult, bool) {
	i := slices.IndexFunc(r.Checks, func(c CheckResult) bool { return c.Name == name })
	if i < 0 {
		return CheckResult{}, false
	}
	return r.Checks[i], true
}

// Checker validates variables and certificates.
type Checker struct {
	// Required maps each group to the variable names it needs.
	Required map[Group][]string
	// Root resolves relative dotenv and certificate paths.
	Root string
	// DotenvFiles are read (not loaded) as a fallback source of values.
	DotenvFiles []string
	// CertPath is a PEM file or a directory of .pem/.crt files.
	CertPath   string
	ExpiryDays int
	// Lookup reads a variable; defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Validate runs every check. A group with no required variables, or an
// unset certificate path, is Skipped.
func (c *Checker) Validate(ctx context.Context) *ValidationResult {
	dotenv := c.readDotenv()
	lookup := c.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	result := &ValidationResult{}
	for _, group := range Groups {
		if ctx.Err() != nil {
			result.Checks = append(result.Checks, CheckResult{Name: string(group), Status: phase.Skipped})
			continue
		}
		result.Checks = append(result.Checks, checkGroup(group, c.Required[group], lookup, dotenv))
	}
	result.Checks = append(result.Checks, c.checkCertificates())
	return result
}

func checkGroup(group Group, names []string, lookup func(string) (string, bool), dotenv map[string]string) CheckResult {
	cr := CheckResult{Name: string(group)}
	if len(names) == 0 {
		cr.Status = phase.Skipped
		return cr
	}

	for _, name := range names {
		v, ok := lookup(name)
		if !ok || v == "" {
			v = dotenv[name]
		}
		if v != "" {
			if group == Database {
				if be := dsnError(name, v); be != nil {
					cr.Errors = append(cr.Errors, *be)
				}
			}
			continue
		}
		cr.Missing = append(cr.Missing, name)
		be := taxonomy.New(taxonomy.EnvironmentConfiguration, taxonomy.High, "environment",
			fmt.Sprintf("environment variable %s is not set (%s)", name, group)).
			WithData(taxonomy.DataVariable, name)
		cr.Errors = append(cr.Errors, be)
	}

	cr.Status = phase.Passed
	if len(cr.Errors) > 0 {
		cr.Status = phase.Failed
	}
	if len(cr.Missing) > 0 {
		slog.Info("required environment variables missing", "group", group, "missing", cr.Missing)
	}
	return cr
}

// dsnError reports a malformed MySQL-style connection string
// (user:pass@tcp(host:port)/db). URL-style values are left to the health
// probe.
func dsnError(name, value string) *taxonomy.BuildError {
	if !strings.Contains(value, "@tcp(") && !strings.Contains(value, "@unix(") {
		return nil
	}
	if _, err := mysql.ParseDSN(value); err != nil {
		be := taxonomy.New(taxonomy.ConfigurationError, taxonomy.High, "environment",
			fmt.Sprintf("connection string in %s is invalid: %v", name, err)).
			WithData(taxonomy.DataVariable, name)
		return &be
	}
	return nil
}

func (c *Checker) resolvePath(p string) string {
	if filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// readDotenv merges the configured dotenv files without touching the
// process environment. Earlier files win.
func (c *Checker) readDotenv() map[string]string {
	files := c.DotenvFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	merged := make(map[string]string)
	for _, f := range files {
		path := c.resolvePath(f)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			slog.Warn("could not parse dotenv file", "path", path, "err", err)
			continue
		}
		for k, v := range values {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged
}
