package ops

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a whole readiness evaluation.
const DefaultCheckTimeout = 2 * time.Second

// Check is one named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckResult is the outcome of one Check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessReport is the /readyz body.
type ReadinessReport struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Pinger adapts anything with a Ping method, such as a storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck builds a Check from a Pinger.
func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Probe: p.Ping}
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	checks  []Check
	timeout time.Duration
}

// NewHealthHandler creates a handler running checks on every readiness probe.
func NewHealthHandler(timeout time.Duration, checks ...Check) *HealthHandler {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	sorted := append([]Check(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &HealthHandler{checks: sorted, timeout: timeout}
}

// Live reports that the process is serving.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready runs every check concurrently. Any failure answers 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())
	status := http.StatusOK
	if report.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Evaluate runs the checks and builds a report.
func (h *HealthHandler) Evaluate(ctx context.Context) ReadinessReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	errs := make([]error, len(h.checks))
	var g errgroup.Group
	for i, c := range h.checks {
		g.Go(func() error {
			errs[i] = c.Probe(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := ReadinessReport{Status: "ready", Checks: make(map[string]CheckResult, len(h.checks))}
	for i, c := range h.checks {
		if errs[i] != nil {
			report.Status = "not_ready"
			report.Checks[c.Name] = CheckResult{Status: "fail", Error: errs[i].Error()}
			continue
		}
		report.Checks[c.Name] = CheckResult{Status: "ok"}
	}
	return report
}
