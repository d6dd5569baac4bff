package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/platform/httpx"
	"github.com/bejimenez/magus/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build  services.BuildInfo
	clock  func() time.Time
	system services.SystemService
}

// HealthOption customises health handlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers builds probe handlers. Without a system service readiness mirrors liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the version metadata reported by the probes.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock injects a clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthSystemService enables dependency checks on /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type healthPayload struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commitSha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime"`
	Timestamp   string                        `json:"timestamp"`
	Checks      map[string]healthCheckPayload `json:"checks,omitempty"`
	Cultures    []string                      `json:"cultures,omitempty"`
	Details     []string                      `json:"details,omitempty"`
}

// Healthz reports process liveness only.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, healthPayload{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies. Degraded optional dependencies keep the instance ready; an
// error status answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	now := h.clock().UTC()
	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, healthPayload{
			Status:      domain.HealthStatusError,
			Version:     h.build.Version,
			CommitSHA:   h.build.CommitSHA,
			Environment: h.build.Environment,
			Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
			Timestamp:   now.Format(time.RFC3339),
			Details:     []string{err.Error()},
		})
		return
	}

	payload := healthPayload{
		Status:      report.Status,
		Version:     firstNonBlank(report.Version, h.build.Version),
		CommitSHA:   firstNonBlank(report.CommitSHA, h.build.CommitSHA),
		Environment: firstNonBlank(report.Environment, h.build.Environment),
		Uptime:      report.Uptime.Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
		Checks:      make(map[string]healthCheckPayload, len(report.Checks)),
		Cultures:    report.Cultures,
	}
	if !report.GeneratedAt.IsZero() {
		payload.Timestamp = report.GeneratedAt.UTC().Format(time.RFC3339)
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		entry := healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMs: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		payload.Checks[name] = entry
		if msg := strings.TrimSpace(check.Error); msg != "" {
			payload.Details = append(payload.Details, name+": "+msg)
		}
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, payload)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
