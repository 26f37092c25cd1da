package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/burnt-beats/beats-core/pkg/process"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_InvocationObserver(t *testing.T) {
	c := NewCollector("test")
	observe := c.InvocationObserver()

	code := 1
	observe(process.Invocation{ID: "midi"}, process.Result{Status: process.StatusSuccess, Duration: time.Second})
	observe(process.Invocation{ID: "vocals"}, process.Result{
		Status:  process.StatusFailure,
		Failure: &process.Failure{Reason: process.ReasonNonZeroExit, ExitCode: &code},
	})
	observe(process.Invocation{}, process.Result{
		Status:  process.StatusFailure,
		Failure: &process.Failure{Reason: process.ReasonSpawnFailed},
	})

	expected := `
		# HELP test_invocations_total Total number of external script invocations by outcome
		# TYPE test_invocations_total counter
		test_invocations_total{invocation="midi",outcome="success"} 1
		test_invocations_total{invocation="unnamed",outcome="SpawnFailed"} 1
		test_invocations_total{invocation="vocals",outcome="NonZeroExit"} 1
	`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "test_invocations_total")
	assert.NoError(t, err)

	count, err := testutil.GatherAndCount(c.Registry(), "test_invocation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollector_OneHotGauges(t *testing.T) {
	c := NewCollector("test")
	all := []string{"healthy", "degraded", "unhealthy"}

	c.HealthStatus("degraded", all)
	c.HealthStatus("unhealthy", all)

	expected := `
		# HELP test_health_status Overall service health; 1 for the current status, 0 otherwise
		# TYPE test_health_status gauge
		test_health_status{status="degraded"} 0
		test_health_status{status="healthy"} 0
		test_health_status{status="unhealthy"} 1
	`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "test_health_status")
	assert.NoError(t, err)

	c.ProbeStatus("storage", "up", []string{"up", "degraded", "down"}, 20*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeStatus.WithLabelValues("storage", "up")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.probeStatus.WithLabelValues("storage", "down")))
	assert.InDelta(t, 0.02, testutil.ToFloat64(c.probeLatency.WithLabelValues("storage")), 1e-9)
}

func TestCollector_GenerationAndHTTP(t *testing.T) {
	c := NewCollector("")

	c.Generation("completed")
	c.GenerationStep("vocals", "omitted")
	c.HTTPRequest("/healthz", 503)
	c.HTTPInFlight(1)
	c.HTTPInFlight(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.generations.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationSteps.WithLabelValues("vocals", "omitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/healthz", "503")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.httpInFlight))
	assert.NotNil(t, c.Handler())
}
