package indexsync

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"

	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
)

// Pinger reports whether a dependency answers.
type Pinger = healthuc.Pinger

// HealthStatus is the outcome of Health. Checks always holds "backend", and
// "source" when the client was built with WithSourceCheck.
type HealthStatus struct {
	Status string            // "ok", "degraded" or "error"
	Checks map[string]string // component to "ok" or "error"
}

// OK reports whether every checked component answered.
func (h HealthStatus) OK() bool { return h.Status == string(healthuc.Healthy) }

// Failing lists the components that did not answer, sorted.
func (h HealthStatus) Failing() []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(h.Checks)) {
		if h.Checks[name] != string(healthuc.CheckOK) {
			out = append(out, name)
		}
	}
	return out
}

// Health pings the search backend and, when configured, the system of record.
func (c *Client) Health(ctx context.Context) (h HealthStatus) {
	report := c.healthSvc.Check(ctx)
	h = HealthStatus{
		Status: string(report.Status),
		Checks: make(map[string]string, len(report.Checks)),
	}
	for name, res := range report.Checks {
		h.Checks[name] = string(res)
	}
	if !h.OK() && c.obs != nil {
		c.obs.logger.Warn("health check failed",
			zap.String("status", h.Status),
			zap.Strings("failing", h.Failing()),
		)
	}
	return h
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
