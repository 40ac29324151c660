// Package health probes the live endpoints of a deployed system (API, web
// front end, database) and retries failed probes with backoff.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/buildcheck/internal/taxonomy"
)

// ErrNoHost is returned by HostPort for endpoints without a host.
var ErrNoHost = errors.New("endpoint has no host")

// HostPort turns a URL or host:port endpoint into a dialable address.
func HostPort(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			return "", fmt.Errorf("endpoint %q: %w", endpoint, err)
		}
		return endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%q: %w", endpoint, ErrNoHost)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "postgres", "postgresql":
			port = "5432"
		case "mysql":
			port = "3306"
		case "redis":
			port = "6379"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// Target is one endpoint to probe.
type Target struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	// Category overrides the classified category of a failed probe, so a
	// refused database port reports as DatabaseConnectivity.
	Category taxonomy.Category `json:"-"`
}

// ProbeResult is the outcome of probing one target.
type ProbeResult struct {
	Target     Target               `json:"target"`
	Healthy    bool                 `json:"healthy"`
	Attempts   int                  `json:"attempts"`
	StatusCode int                  `json:"statusCode,omitempty"`
	Latency    time.Duration        `json:"latency"`
	Error      *taxonomy.BuildError `json:"error,omitempty"`
}

// Report is the outcome of a health check run.
type Report struct {
	Results []ProbeResult `json:"results"`
}

// Healthy reports whether every probed target is healthy.
func (r *Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.Healthy {
			return false
		}
	}
	return true
}

// Errors returns the classified error of every unhealthy target.
func (r *Report) Errors() []taxonomy.BuildError {
	var out []taxonomy.BuildError
	for _, res := range r.Results {
		if res.Error != nil {
			out = append(out, *res.Error)
		}
	}
	return out
}

// Prober checks HTTP endpoints with GET and everything else with a TCP dial.
type Prober struct {
	Client     *http.Client
	Classifier *taxonomy.Classifier
	Backoff    Backoff
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Timeout bounds each attempt.
	Timeout time.Duration
}

func (p *Prober) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return http.DefaultClient
}

// Check probes every target with a non-empty endpoint concurrently. Results
// keep the order of targets.
func (p *Prober) Check(ctx context.Context, targets []Target) *Report {
	var active []Target
	for _, t := range targets {
		if strings.TrimSpace(t.Endpoint) != "" {
			active = append(active, t)
		}
	}

	results := make([]ProbeResult, len(active))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range active {
		g.Go(func() error {
			res := p.Probe(gctx, t)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &Report{Results: results}
}

// Probe checks one target, retrying failures with backoff.
func (p *Prober) Probe(ctx context.Context, t Target) ProbeResult {
	res := ProbeResult{Target: t}
	logger := slog.With("target", t.Name, "endpoint", t.Endpoint)

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff.Delay(attempt - 1)
			logger.Debug("retrying probe", "attempt", attempt+1, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		res.Attempts++
		start := time.Now()
		code, err := p.attempt(ctx, t.Endpoint)
		res.Latency = time.Since(start)
		res.StatusCode = code
		if err == nil {
			res.Healthy = true
			logger.Info("probe healthy", "attempts", res.Attempts, "latency", res.Latency)
			return res
		}
		lastErr = err
	}

	classifier := p.Classifier
	if classifier == nil {
		classifier = taxonomy.NewClassifier()
	}
	be := classifier.ClassifyError(t.Name, lastErr).WithData(taxonomy.DataEndpoint, t.Endpoint)
	if t.Category != taxonomy.Unknown && be.Category != t.Category {
		be.Category = t.Category
		be.Severity = taxonomy.DefaultSeverity(t.Category)
		be.ResolutionHint = taxonomy.ResolutionHint(t.Category)
	}
	res.Error = &be
	logger.Warn("probe unhealthy", "attempts", res.Attempts, "err", lastErr)
	return res
}

func (p *Prober) attempt(ctx context.Context, endpoint string) (int, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, fmt.Errorf("build request: %w", err)
		}
		resp, err := p.client().Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return resp.StatusCode, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, taxonomy.ErrUnauthorized)
		case resp.StatusCode >= 500:
			return resp.StatusCode, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, taxonomy.ErrDependencyUnavailable)
		case resp.StatusCode >= 400:
			return resp.StatusCode, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, taxonomy.ErrInvalidConfiguration)
		}
		return resp.StatusCode, nil
	}

	addr, err := HostPort(endpoint)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", taxonomy.ErrInvalidConfiguration, err)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, err
	}
	conn.Close()
	return 0, nil
}
