package testexec

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/buildcheck/internal/phase"
	"github.com/ShayCichocki/buildcheck/internal/runtimeerr"
	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// Scenario is one injected runtime failure and how it must be handled.
type Scenario struct {
	Name        string
	Description string
	Err         error

	WantCategory  taxonomy.Category
	WantStatus    int
	WantAttempted bool
	WantRecovered bool
}

// ScenarioResult records whether a scenario was handled as expected.
type ScenarioResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Handled     bool   `json:"handled"`
	Detail      string `json:"detail,omitempty"`
}

// DefaultScenarios is the built-in failure catalogue.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:          "network-failure",
			Description:   "Upstream connection refused",
			Err:           &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			WantCategory:  taxonomy.NetworkConnectivity,
			WantStatus:    http.StatusBadGateway,
			WantAttempted: true,
		},
		{
			Name:          "database-unavailable",
			Description:   "Database connection dropped mid-query",
			Err:           fmt.Errorf("query orders: %w", driver.ErrBadConn),
			WantCategory:  taxonomy.DatabaseConnectivity,
			WantStatus:    http.StatusServiceUnavailable,
			WantAttempted: true,
		},
		{
			Name:          "authentication-service-failure",
			Description:   "Identity provider rejects the access token",
			Err:           fmt.Errorf("introspect token: %w", taxonomy.ErrUnauthorized),
			WantCategory:  taxonomy.Authentication,
			WantStatus:    http.StatusUnauthorized,
			WantAttempted: true,
			WantRecovered: true,
		},
		{
			Name:          "resource-exhaustion",
			Description:   "Worker pool exhausted",
			Err:           fmt.Errorf("worker pool exhausted: %w", taxonomy.ErrInvalidOperation),
			WantCategory:  taxonomy.RuntimeException,
			WantStatus:    http.StatusInternalServerError,
			WantAttempted: true,
		},
		{
			Name:          "configuration-error",
			Description:   "Required setting missing at request time",
			Err:           fmt.Errorf("payments.api_key: %w", taxonomy.ErrInvalidConfiguration),
			WantCategory:  taxonomy.ConfigurationError,
			WantStatus:    http.StatusBadRequest,
			WantAttempted: true,
			WantRecovered: true,
		},
		{
			Name:          "dependency-failure",
			Description:   "Downstream service unavailable",
			Err:           fmt.Errorf("inventory service: %w", taxonomy.ErrDependencyUnavailable),
			WantCategory:  taxonomy.NetworkConnectivity,
			WantStatus:    http.StatusBadGateway,
			WantAttempted: true,
		},
	}
}

// RunSimulation injects every scenario into the runtime handler and checks
// category, HTTP status and recovery outcome. The tier passes iff every
// scenario was handled as expected.
func (e *Executor) RunSimulation(ctx context.Context) (result TierResult) {
	result = TierResult{Tier: ErrorSimulation, Status: phase.Running}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result.Status = phase.Error
			result.Errors = append(result.Errors, taxonomy.SystemFault("error simulation", fmt.Errorf("panic: %v", rec)))
		}
		result.Duration = time.Since(start)
	}()

	handler := e.Handler
	if handler == nil {
		handler = runtimeerr.NewHandler(e.classifier(), "development")
	}
	scenarios := e.Scenarios
	if scenarios == nil {
		scenarios = DefaultScenarios()
	}

	result.Status = phase.Passed
	for _, sc := range scenarios {
		sr := simulate(ctx, handler, sc)
		result.Scenarios = append(result.Scenarios, sr)
		if !sr.Handled {
			result.Status = phase.Failed
			result.Errors = append(result.Errors, taxonomy.New(taxonomy.RuntimeException, taxonomy.High, "error simulation",
				fmt.Sprintf("scenario %s mishandled: %s", sc.Name, sr.Detail)))
		}
	}
	return result
}

func simulate(ctx context.Context, h *runtimeerr.Handler, sc Scenario) ScenarioResult {
	out := h.Handle(ctx, sc.Err, "/simulate/"+sc.Name, uuid.NewString())

	var problems []string
	if out.Error.Category != sc.WantCategory {
		problems = append(problems, fmt.Sprintf("category %s, want %s", out.Error.Category, sc.WantCategory))
	}
	if out.Status != sc.WantStatus {
		problems = append(problems, fmt.Sprintf("status %d, want %d", out.Status, sc.WantStatus))
	}
	if out.Recovery.Attempted != sc.WantAttempted {
		problems = append(problems, fmt.Sprintf("recovery attempted %t, want %t", out.Recovery.Attempted, sc.WantAttempted))
	}
	if out.Recovery.Successful != sc.WantRecovered {
		problems = append(problems, fmt.Sprintf("recovery successful %t, want %t", out.Recovery.Successful, sc.WantRecovered))
	}
	if out.Response.Success {
		problems = append(problems, "response reported success")
	}

	return ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Handled:     len(problems) == 0,
		Detail:      strings.Join(problems, "; "),
	}
}
