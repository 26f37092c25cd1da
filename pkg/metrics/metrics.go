package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/burnt-beats/beats-core/pkg/process"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "beats"

// Collector owns a private registry so tests and multiple instances never
// collide on the global default registry.
type Collector struct {
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	generationSteps    *prometheus.CounterVec
	generations        *prometheus.CounterVec
	healthStatus       *prometheus.GaugeVec
	probeStatus        *prometheus.GaugeVec
	probeLatency       *prometheus.GaugeVec
	shutdownState      *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
	httpInFlight       prometheus.Gauge

	registry *prometheus.Registry
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of external script invocations by outcome",
		},
		[]string{"invocation", "outcome"},
	)

	c.invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of external script invocations",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"invocation"},
	)

	c.generationSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_steps_total",
			Help:      "Composite generation sub-steps by artifact and outcome",
		},
		[]string{"step", "outcome"},
	)

	c.generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Composite generation requests by outcome",
		},
		[]string{"outcome"},
	)

	c.healthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_status",
			Help:      "Overall service health; 1 for the current status, 0 otherwise",
		},
		[]string{"status"},
	)

	c.probeStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_status",
			Help:      "Per-probe status; 1 for the current status, 0 otherwise",
		},
		[]string{"probe", "status"},
	)

	c.probeLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Latency of the most recent run of each probe",
		},
		[]string{"probe"},
	)

	c.shutdownState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shutdown_state",
			Help:      "Process lifecycle state; 1 for the current state, 0 otherwise",
		},
		[]string{"state"},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	c.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)

	c.registry.MustRegister(
		c.invocations,
		c.invocationDuration,
		c.generationSteps,
		c.generations,
		c.healthStatus,
		c.probeStatus,
		c.probeLatency,
		c.shutdownState,
		c.httpRequests,
		c.httpInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// InvocationObserver returns a process.Observer that records every invocation.
func (c *Collector) InvocationObserver() process.Observer {
	return func(inv process.Invocation, result process.Result) {
		outcome := string(process.StatusSuccess)
		if result.Failure != nil {
			outcome = string(result.Failure.Reason)
		}
		id := inv.ID
		if id == "" {
			id = "unnamed"
		}
		c.invocations.WithLabelValues(id, outcome).Inc()
		c.invocationDuration.WithLabelValues(id).Observe(result.Duration.Seconds())
	}
}

func (c *Collector) GenerationStep(step, outcome string) {
	c.generationSteps.WithLabelValues(step, outcome).Inc()
}

func (c *Collector) Generation(outcome string) {
	c.generations.WithLabelValues(outcome).Inc()
}

// HealthStatus sets the one-hot overall status gauge.
func (c *Collector) HealthStatus(current string, all []string) {
	setOneHot(c.healthStatus, current, all)
}

func (c *Collector) ProbeStatus(probe, current string, all []string, latency time.Duration) {
	for _, status := range all {
		value := 0.0
		if status == current {
			value = 1
		}
		c.probeStatus.WithLabelValues(probe, status).Set(value)
	}
	c.probeLatency.WithLabelValues(probe).Set(latency.Seconds())
}

func (c *Collector) ShutdownState(current string, all []string) {
	setOneHot(c.shutdownState, current, all)
}

func (c *Collector) HTTPRequest(route string, code int) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (c *Collector) HTTPInFlight(delta float64) {
	c.httpInFlight.Add(delta)
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func setOneHot(gauge *prometheus.GaugeVec, current string, all []string) {
	for _, value := range all {
		if value == current {
			gauge.WithLabelValues(value).Set(1)
		} else {
			gauge.WithLabelValues(value).Set(0)
		}
	}
}
