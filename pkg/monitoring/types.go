package monitoring

import (
	"net/http"
	"time"
)

type ProbeStatus string

const (
	ProbeStatusUp       ProbeStatus = "up"
	ProbeStatusDegraded ProbeStatus = "degraded"
	ProbeStatusDown     ProbeStatus = "down"
)

// AllProbeStatuses lists every probe status, for one-hot gauges.
var AllProbeStatuses = []string{string(ProbeStatusUp), string(ProbeStatusDegraded), string(ProbeStatusDown)}

type OverallStatus string

const (
	StatusHealthy   OverallStatus = "healthy"
	StatusDegraded  OverallStatus = "degraded"
	StatusUnhealthy OverallStatus = "unhealthy"
)

var AllOverallStatuses = []string{string(StatusHealthy), string(StatusDegraded), string(StatusUnhealthy)}

type ProbeResult struct {
	Name        string        `json:"name"`
	Status      ProbeStatus   `json:"status"`
	Error       string        `json:"error,omitempty"`
	Latency     time.Duration `json:"latency"`
	LastChecked time.Time     `json:"last_checked"`
}

type RuntimeMetrics struct {
	HeapUsed   uint64        `json:"heap_used"`
	HeapTotal  uint64        `json:"heap_total"`
	HeapRatio  float64       `json:"heap_ratio"`
	Goroutines int           `json:"goroutines"`
	Uptime     time.Duration `json:"uptime"`
}

// Snapshot is one aggregation cycle's view of the service. Once published it
// is never mutated; readers get copies.
type Snapshot struct {
	Status    OverallStatus          `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Probes    map[string]ProbeResult `json:"probes"`
	Metrics   RuntimeMetrics         `json:"metrics"`
}

func (s *Snapshot) clone() Snapshot {
	c := *s
	c.Probes = make(map[string]ProbeResult, len(s.Probes))
	for name, result := range s.Probes {
		c.Probes[name] = result
	}
	return c
}

// OverallFromProbes applies strict precedence: any down is unhealthy, else any
// degraded is degraded, else healthy.
func OverallFromProbes(probes map[string]ProbeResult) OverallStatus {
	overall := StatusHealthy
	for _, result := range probes {
		switch result.Status {
		case ProbeStatusDown:
			return StatusUnhealthy
		case ProbeStatusDegraded:
			overall = StatusDegraded
		case ProbeStatusUp:
		default:
			// Unknown statuses are treated as failures.
			return StatusUnhealthy
		}
	}
	return overall
}

// HTTPStatus maps overall status to the code served to load balancers.
// Degraded still receives traffic.
func HTTPStatus(status OverallStatus) int {
	switch status {
	case StatusHealthy, StatusDegraded:
		return http.StatusOK
	default:
		return http.StatusServiceUnavailable
	}
}
