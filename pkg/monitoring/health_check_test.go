package monitoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/burnt-beats/beats-core/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func staticProbe(name string, status ProbeStatus, err error) Probe {
	return ProbeFunc(name, func(ctx context.Context) (ProbeStatus, error) {
		return status, err
	})
}

func TestOverallFromProbes(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ProbeStatus
		expected OverallStatus
	}{
		{"no_probes", nil, StatusHealthy},
		{"all_up", []ProbeStatus{ProbeStatusUp, ProbeStatusUp}, StatusHealthy},
		{"one_degraded", []ProbeStatus{ProbeStatusUp, ProbeStatusDegraded}, StatusDegraded},
		{"down_beats_degraded", []ProbeStatus{ProbeStatusDegraded, ProbeStatusDown, ProbeStatusUp}, StatusUnhealthy},
		{"unknown_status", []ProbeStatus{ProbeStatus("flaky")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probes := make(map[string]ProbeResult)
			for i, status := range tt.statuses {
				name := string(rune('a' + i))
				probes[name] = ProbeResult{Name: name, Status: status}
			}
			assert.Equal(t, tt.expected, OverallFromProbes(probes))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 200, HTTPStatus(StatusHealthy))
	assert.Equal(t, 200, HTTPStatus(StatusDegraded))
	assert.Equal(t, 503, HTTPStatus(StatusUnhealthy))
	assert.Equal(t, 503, HTTPStatus(OverallStatus("")))
}

func TestCheckHealth_FailingProbeIsIsolated(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		staticProbe("database", ProbeStatusDown, errors.New("connection refused")),
		ProbeFunc("panicky", func(ctx context.Context) (ProbeStatus, error) {
			panic("nil map write")
		}),
		staticProbe("credentials", ProbeStatusDegraded, errors.New("missing key")),
	}, logging.Nop())

	snapshot := aggregator.CheckHealth(context.Background())

	assert.Equal(t, StatusUnhealthy, snapshot.Status)
	require.Len(t, snapshot.Probes, 4)
	assert.Equal(t, ProbeStatusUp, snapshot.Probes["storage"].Status)
	assert.Equal(t, ProbeStatusDown, snapshot.Probes["database"].Status)
	assert.Equal(t, "connection refused", snapshot.Probes["database"].Error)
	assert.Equal(t, ProbeStatusDown, snapshot.Probes["panicky"].Status)
	assert.Contains(t, snapshot.Probes["panicky"].Error, "nil map write")
	assert.Equal(t, ProbeStatusDegraded, snapshot.Probes["credentials"].Status)

	for name, result := range snapshot.Probes {
		assert.False(t, result.LastChecked.IsZero(), "probe %s", name)
	}
}

func TestCheckHealth_DegradedOnly(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		staticProbe("credentials", ProbeStatusDegraded, errors.New("STRIPE_SECRET_KEY not set")),
	}, logging.Nop())

	snapshot := aggregator.CheckHealth(context.Background())

	assert.Equal(t, StatusDegraded, snapshot.Status)
	assert.Equal(t, 200, HTTPStatus(snapshot.Status))
}

func TestCheckHealth_ProbeResultNormalisation(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("up_with_error", ProbeStatusUp, errors.New("partial read")),
		staticProbe("bogus", ProbeStatus("maybe"), nil),
	}, logging.Nop())

	snapshot := aggregator.CheckHealth(context.Background())

	assert.Equal(t, ProbeStatusDown, snapshot.Probes["up_with_error"].Status)
	assert.Equal(t, ProbeStatusDown, snapshot.Probes["bogus"].Status)
	assert.Contains(t, snapshot.Probes["bogus"].Error, "unknown status")
}

func TestCheckHealth_HangingProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		ProbeFunc("stuck", func(ctx context.Context) (ProbeStatus, error) {
			<-release
			return ProbeStatusUp, nil
		}),
	}, logging.Nop(), WithProbeTimeout(100*time.Millisecond))

	start := time.Now()
	snapshot := aggregator.CheckHealth(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnhealthy, snapshot.Status)
	assert.Equal(t, ProbeStatusDown, snapshot.Probes["stuck"].Status)
	assert.Contains(t, snapshot.Probes["stuck"].Error, "timed out")
	assert.Equal(t, ProbeStatusUp, snapshot.Probes["storage"].Status)
}

func TestCheckHealth_ProbesRunInParallel(t *testing.T) {
	slow := func(name string) Probe {
		return ProbeFunc(name, func(ctx context.Context) (ProbeStatus, error) {
			time.Sleep(200 * time.Millisecond)
			return ProbeStatusUp, nil
		})
	}
	aggregator := NewAggregator([]Probe{slow("a"), slow("b"), slow("c"), slow("d")}, logging.Nop())

	start := time.Now()
	snapshot := aggregator.CheckHealth(context.Background())

	assert.Equal(t, StatusHealthy, snapshot.Status)
	assert.Less(t, time.Since(start), 600*time.Millisecond)
}

func TestCheckHealth_FallbackSnapshotWhenAggregationFails(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		staticProbe("memory", ProbeStatusUp, nil),
	}, logging.Nop(), WithRuntimeMetrics(func() RuntimeMetrics {
		panic("memstats unavailable")
	}))

	snapshot := aggregator.CheckHealth(context.Background())

	assert.Equal(t, StatusUnhealthy, snapshot.Status)
	require.Len(t, snapshot.Probes, 2)
	for _, result := range snapshot.Probes {
		assert.Equal(t, ProbeStatusDown, result.Status)
		assert.Contains(t, result.Error, "memstats unavailable")
	}

	cached, ok := aggregator.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, cached.Status)
}

func TestLastSnapshot(t *testing.T) {
	var status atomic.Value
	status.Store(ProbeStatusUp)
	aggregator := NewAggregator([]Probe{
		ProbeFunc("storage", func(ctx context.Context) (ProbeStatus, error) {
			return status.Load().(ProbeStatus), nil
		}),
	}, logging.Nop())

	_, ok := aggregator.LastSnapshot()
	assert.False(t, ok)

	first := aggregator.CheckHealth(context.Background())
	cached, ok := aggregator.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, first.Timestamp, cached.Timestamp)
	assert.Equal(t, StatusHealthy, cached.Status)

	// Mutating a returned copy must not leak into the cache.
	cached.Probes["storage"] = ProbeResult{Name: "storage", Status: ProbeStatusDown}
	again, _ := aggregator.LastSnapshot()
	assert.Equal(t, ProbeStatusUp, again.Probes["storage"].Status)

	status.Store(ProbeStatusDown)
	aggregator.CheckHealth(context.Background())
	replaced, _ := aggregator.LastSnapshot()
	assert.Equal(t, StatusUnhealthy, replaced.Status)
	assert.False(t, replaced.Timestamp.Before(first.Timestamp))
}

func TestStartStop(t *testing.T) {
	var checks atomic.Int32
	aggregator := NewAggregator([]Probe{
		ProbeFunc("counter", func(ctx context.Context) (ProbeStatus, error) {
			checks.Add(1)
			return ProbeStatusUp, nil
		}),
	}, logging.Nop(), WithProbeTimeout(10*time.Millisecond))

	require.NoError(t, aggregator.Start(20*time.Millisecond))
	// A second Start does not spawn another loop.
	require.NoError(t, aggregator.Start(20*time.Millisecond))

	require.Eventually(t, func() bool {
		return checks.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	aggregator.Stop()
	aggregator.Stop()

	stopped := checks.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, stopped, checks.Load())

	_, ok := aggregator.LastSnapshot()
	assert.True(t, ok)
}

func TestStart_InvalidInterval(t *testing.T) {
	aggregator := NewAggregator(nil, logging.Nop())

	assert.Error(t, aggregator.Start(0))
	// Probe timeout (default 5s) must be below the interval.
	assert.Error(t, aggregator.Start(time.Second))
	aggregator.Stop()
}

func TestStop_WithoutStart(t *testing.T) {
	aggregator := NewAggregator(nil, logging.Nop())
	assert.NotPanics(t, aggregator.Stop)
}

func TestConcurrentReadersDuringRefresh(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		staticProbe("memory", ProbeStatusDegraded, nil),
	}, logging.Nop())
	aggregator.CheckHealth(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				aggregator.CheckHealth(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snapshot, ok := aggregator.LastSnapshot()
				if assert.True(t, ok) {
					assert.Len(t, snapshot.Probes, 2)
					assert.Equal(t, StatusDegraded, snapshot.Status)
				}
			}
		}()
	}
	wg.Wait()
}

type MockStatusRecorder struct {
	mock.Mock
}

func (m *MockStatusRecorder) HealthStatus(current string, all []string) {
	m.Called(current, all)
}

func (m *MockStatusRecorder) ProbeStatus(probe, current string, all []string, latency time.Duration) {
	m.Called(probe, current, all, latency)
}

func TestRecordingObserver(t *testing.T) {
	recorder := &MockStatusRecorder{}
	recorder.On("HealthStatus", "degraded", AllOverallStatuses).Once()
	recorder.On("ProbeStatus", "credentials", "degraded", AllProbeStatuses, mock.AnythingOfType("time.Duration")).Once()

	aggregator := NewAggregator([]Probe{
		staticProbe("credentials", ProbeStatusDegraded, nil),
	}, logging.Nop(), WithSnapshotObserver(RecordingObserver(recorder)))

	aggregator.CheckHealth(context.Background())

	recorder.AssertExpectations(t)
}

func TestObserverPanicDoesNotBreakAggregation(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
	}, logging.Nop(), WithSnapshotObserver(func(Snapshot) {
		panic("observer bug")
	}))

	snapshot := aggregator.CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, snapshot.Status)
}

func TestNewAggregator_DuplicateProbeNames(t *testing.T) {
	aggregator := NewAggregator([]Probe{
		staticProbe("storage", ProbeStatusUp, nil),
		staticProbe("storage", ProbeStatusDown, nil),
	}, logging.Nop())

	snapshot := aggregator.CheckHealth(context.Background())
	require.Len(t, snapshot.Probes, 1)
	assert.Equal(t, ProbeStatusUp, snapshot.Probes["storage"].Status)
}
