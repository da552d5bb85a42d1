package admin

import (
	"net/http"
	"time"

	"github.com/GoCodeAlone/modhost"
)

// HealthStatus is the health of one plugin or of the whole host.
type HealthStatus int

const (
	HealthStatusUnknown HealthStatus = iota
	HealthStatusHealthy
	HealthStatusDegraded
	HealthStatusUnhealthy
)

// String returns the string representation of the health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s HealthStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name; unknown names decode to
// HealthStatusUnknown.
func (s *HealthStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "healthy":
		*s = HealthStatusHealthy
	case "degraded":
		*s = HealthStatusDegraded
	case "unhealthy":
		*s = HealthStatusUnhealthy
	default:
		*s = HealthStatusUnknown
	}
	return nil
}

// HealthReport is the health of one plugin.
type HealthReport struct {
	Plugin  string       `json:"plugin"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// AggregatedHealth combines the plugin reports. Readiness is healthy once
// no plugin is waiting to be initialized.
type AggregatedHealth struct {
	Readiness   HealthStatus   `json:"readiness"`
	Health      HealthStatus   `json:"health"`
	Reports     []HealthReport `json:"reports"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	plugins, err := h.plugins.GetPlugins(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	agg := aggregate(plugins)
	status := http.StatusOK
	if agg.Health == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.write(w, status, agg)
}

func aggregate(plugins []*modhost.Description) AggregatedHealth {
	agg := AggregatedHealth{
		Readiness:   HealthStatusHealthy,
		Health:      HealthStatusHealthy,
		Reports:     make([]HealthReport, 0, len(plugins)),
		GeneratedAt: time.Now().UTC(),
	}
	var unhealthy, pending int
	for _, d := range plugins {
		report := HealthReport{Plugin: d.ID()}
		switch d.State() {
		case modhost.StateActive:
			report.Status = HealthStatusHealthy
		case modhost.StateFailed:
			report.Status = HealthStatusUnhealthy
			report.Message = "initialize failed"
			unhealthy++
		default:
			report.Status = HealthStatusUnknown
			report.Message = "not initialized"
			pending++
		}
		agg.Reports = append(agg.Reports, report)
	}

	switch {
	case unhealthy > 0 && unhealthy == len(plugins):
		agg.Health = HealthStatusUnhealthy
	case unhealthy > 0 || pending > 0:
		agg.Health = HealthStatusDegraded
	}
	if pending > 0 {
		agg.Readiness = HealthStatusUnhealthy
	}
	return agg
}
