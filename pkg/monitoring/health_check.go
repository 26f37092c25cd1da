package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/burnt-beats/beats-core/pkg/logging"
)

var processStart = time.Now()

// SnapshotObserver is notified after every snapshot is published.
type SnapshotObserver func(snapshot Snapshot)

type Aggregator interface {
	// CheckHealth runs every probe once, publishes and returns the snapshot.
	// It never fails: a broken aggregation yields an unhealthy snapshot.
	CheckHealth(ctx context.Context) Snapshot
	// Start runs CheckHealth immediately and then every interval.
	Start(interval time.Duration) error
	// Stop halts the periodic loop. Safe to call repeatedly.
	Stop()
	// LastSnapshot returns the cached snapshot without running probes.
	LastSnapshot() (Snapshot, bool)
}

type AggregatorOption func(*aggregator)

func WithProbeTimeout(timeout time.Duration) AggregatorOption {
	return func(a *aggregator) {
		a.probeTimeout = timeout
	}
}

func WithSnapshotObserver(observer SnapshotObserver) AggregatorOption {
	return func(a *aggregator) {
		a.observers = append(a.observers, observer)
	}
}

// WithRuntimeMetrics replaces the runtime metrics reader.
func WithRuntimeMetrics(read func() RuntimeMetrics) AggregatorOption {
	return func(a *aggregator) {
		a.readMetrics = read
	}
}

type namedProbe struct {
	name  string
	probe Probe
}

type aggregator struct {
	probes       []namedProbe
	probeTimeout time.Duration
	observers    []SnapshotObserver
	readMetrics  func() RuntimeMetrics
	logger       logging.Logger

	last atomic.Pointer[Snapshot]

	mutex    sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewAggregator(probes []Probe, logger logging.Logger, opts ...AggregatorOption) Aggregator {
	a := &aggregator{
		probeTimeout: DefaultProbeTimeout,
		readMetrics:  readRuntimeMetrics,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	seen := make(map[string]bool, len(probes))
	for _, probe := range probes {
		name := probe.Name()
		if seen[name] {
			logger.Warnf("Duplicate probe name ignored, probe: %s", name)
			continue
		}
		seen[name] = true
		a.probes = append(a.probes, namedProbe{name: name, probe: probe})
	}
	return a
}

func (a *aggregator) CheckHealth(ctx context.Context) (snapshot Snapshot) {
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorf("Health aggregation failed, publishing fallback snapshot, panic: %v", r)
			fallback := a.fallbackSnapshot(fmt.Sprintf("aggregation failed: %v", r))
			a.publish(fallback)
			snapshot = fallback.clone()
		}
	}()

	probes := a.runProbes(ctx)
	s := &Snapshot{
		Status:    OverallFromProbes(probes),
		Timestamp: time.Now(),
		Probes:    probes,
		Metrics:   a.readMetrics(),
	}
	a.publish(s)
	return s.clone()
}

func (a *aggregator) LastSnapshot() (Snapshot, bool) {
	s := a.last.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return s.clone(), true
}

func (a *aggregator) Start(interval time.Duration) error {
	if err := ValidateRunOptions(interval, a.probeTimeout); err != nil {
		a.logger.Errorf("Health aggregator configuration validation failed, error: %v", err)
		return err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.stopChan != nil {
		a.logger.Warnf("Health aggregator is already running")
		return nil
	}

	a.logger.Infof("Starting health aggregator, probes: %d, interval: %v, probe timeout: %v", len(a.probes), interval, a.probeTimeout)

	a.stopChan = make(chan struct{})
	a.wg.Add(1)
	go a.loop(interval, a.stopChan)
	return nil
}

func (a *aggregator) Stop() {
	a.mutex.Lock()
	stopChan := a.stopChan
	a.stopChan = nil
	a.mutex.Unlock()

	if stopChan == nil {
		return
	}

	a.logger.Infof("Stopping health aggregator")
	close(stopChan)
	a.wg.Wait()
	a.logger.Infof("Health aggregator stopped")
}

func (a *aggregator) loop(interval time.Duration, stopChan chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.CheckHealth(context.Background())

	for {
		select {
		case <-ticker.C:
			a.CheckHealth(context.Background())
		case <-stopChan:
			a.logger.Debugf("Health aggregator loop stopping")
			return
		}
	}
}

func (a *aggregator) runProbes(ctx context.Context) map[string]ProbeResult {
	results := make(chan ProbeResult, len(a.probes))
	for _, p := range a.probes {
		go func(p namedProbe) {
			results <- a.runProbe(ctx, p)
		}(p)
	}

	probes := make(map[string]ProbeResult, len(a.probes))
	for range a.probes {
		result := <-results
		probes[result.Name] = result
	}
	return probes
}

type probeOutcome struct {
	status ProbeStatus
	err    error
}

// runProbe never blocks longer than the probe timeout, even when the probe
// ignores its context; a late result is dropped.
func (a *aggregator) runProbe(ctx context.Context, p namedProbe) ProbeResult {
	start := time.Now()
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeOutcome{status: ProbeStatusDown, err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		status, err := p.probe.Check(probeCtx)
		done <- probeOutcome{status: status, err: err}
	}()

	result := ProbeResult{Name: p.name}
	select {
	case outcome := <-done:
		result.Status = outcome.status
		if outcome.err != nil {
			result.Error = outcome.err.Error()
		}
		switch outcome.status {
		case ProbeStatusUp:
			if outcome.err != nil {
				result.Status = ProbeStatusDown
			}
		case ProbeStatusDegraded, ProbeStatusDown:
		default:
			result.Status = ProbeStatusDown
			result.Error = fmt.Sprintf("probe returned unknown status %q", outcome.status)
		}
	case <-probeCtx.Done():
		result.Status = ProbeStatusDown
		if ctx.Err() != nil {
			result.Error = "probe cancelled: " + ctx.Err().Error()
		} else {
			result.Error = "probe timed out after " + a.probeTimeout.String()
		}
	}

	result.LastChecked = time.Now()
	result.Latency = result.LastChecked.Sub(start)

	if result.Status != ProbeStatusUp {
		a.logger.Warnf("Probe not up, probe: %s, status: %s, latency: %v, error: %s", p.name, result.Status, result.Latency, result.Error)
	} else {
		a.logger.Debugf("Probe passed, probe: %s, latency: %v", p.name, result.Latency)
	}
	return result
}

func (a *aggregator) fallbackSnapshot(reason string) *Snapshot {
	now := time.Now()
	probes := make(map[string]ProbeResult, len(a.probes))
	for _, p := range a.probes {
		probes[p.name] = ProbeResult{
			Name:        p.name,
			Status:      ProbeStatusDown,
			Error:       reason,
			LastChecked: now,
		}
	}
	return &Snapshot{
		Status:    StatusUnhealthy,
		Timestamp: now,
		Probes:    probes,
		Metrics:   RuntimeMetrics{Uptime: time.Since(processStart)},
	}
}

func (a *aggregator) publish(s *Snapshot) {
	previous := a.last.Swap(s)

	switch {
	case previous == nil:
		a.logger.Infof("Initial health snapshot, status: %s", s.Status)
	case previous.Status != s.Status:
		if s.Status == StatusHealthy {
			a.logger.Infof("Health recovered, status: %s->%s", previous.Status, s.Status)
		} else {
			a.logger.Warnf("Health status changed, status: %s->%s", previous.Status, s.Status)
		}
	default:
		a.logger.Debugf("Health snapshot refreshed, status: %s", s.Status)
	}

	for _, observer := range a.observers {
		a.notify(observer, s)
	}
}

func (a *aggregator) notify(observer SnapshotObserver, s *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorf("Snapshot observer panicked, panic: %v", r)
		}
	}()
	observer(s.clone())
}

func readRuntimeMetrics() RuntimeMetrics {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return RuntimeMetrics{
		HeapUsed:   stats.HeapAlloc,
		HeapTotal:  stats.HeapSys,
		HeapRatio:  heapRatio(stats.HeapAlloc, stats.HeapSys),
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(processStart),
	}
}

// StatusRecorder receives published statuses; *metrics.Collector implements it.
type StatusRecorder interface {
	HealthStatus(current string, all []string)
	ProbeStatus(probe, current string, all []string, latency time.Duration)
}

func RecordingObserver(recorder StatusRecorder) SnapshotObserver {
	return func(snapshot Snapshot) {
		recorder.HealthStatus(string(snapshot.Status), AllOverallStatuses)
		for name, result := range snapshot.Probes {
			recorder.ProbeStatus(name, string(result.Status), AllProbeStatuses, result.Latency)
		}
	}
}
