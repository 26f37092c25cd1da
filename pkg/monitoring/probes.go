package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/processfile"
	"github.com/burnt-beats/beats-core/pkg/processstate"
)

// Probe checks one dependency. A returned error is reported alongside the
// status; Check may also panic or block, the aggregator contains both.
type Probe interface {
	Name() string
	Check(ctx context.Context) (ProbeStatus, error)
}

type probeFunc struct {
	name  string
	check func(ctx context.Context) (ProbeStatus, error)
}

// ProbeFunc adapts a function to the Probe interface.
func ProbeFunc(name string, check func(ctx context.Context) (ProbeStatus, error)) Probe {
	return &probeFunc{name: name, check: check}
}

func (p *probeFunc) Name() string { return p.name }

func (p *probeFunc) Check(ctx context.Context) (ProbeStatus, error) {
	return p.check(ctx)
}

// StorageProbe verifies the storage path accepts writes by creating and
// removing a scratch file.
type StorageProbe struct {
	Path string
}

func (p *StorageProbe) Name() string { return "storage" }

func (p *StorageProbe) Check(ctx context.Context) (ProbeStatus, error) {
	if err := ctx.Err(); err != nil {
		return ProbeStatusDown, err
	}

	file, err := os.CreateTemp(p.Path, ".health-*")
	if err != nil {
		return ProbeStatusDown, errors.NewIOError("storage path is not writable", err).WithContext("path", p.Path)
	}
	name := file.Name()
	defer os.Remove(name)

	if _, err := file.WriteString("ok"); err != nil {
		file.Close()
		return ProbeStatusDown, errors.NewIOError("failed to write health file", err).WithContext("path", name)
	}
	if err := file.Close(); err != nil {
		return ProbeStatusDown, errors.NewIOError("failed to close health file", err).WithContext("path", name)
	}
	return ProbeStatusUp, nil
}

// MemoryProbe reports degraded when heap in use exceeds Threshold of the
// heap obtained from the OS.
type MemoryProbe struct {
	Threshold float64

	// ReadStats overrides runtime.ReadMemStats in tests.
	ReadStats func(*runtime.MemStats)
}

func (p *MemoryProbe) Name() string { return "memory" }

func (p *MemoryProbe) Check(ctx context.Context) (ProbeStatus, error) {
	var stats runtime.MemStats
	if p.ReadStats != nil {
		p.ReadStats(&stats)
	} else {
		runtime.ReadMemStats(&stats)
	}

	ratio := heapRatio(stats.HeapAlloc, stats.HeapSys)
	if ratio > p.Threshold {
		return ProbeStatusDegraded, errors.NewHealthCheckError("heap usage above threshold", nil).
			WithContext("ratio", fmt.Sprintf("%.2f", ratio)).
			WithContext("threshold", p.Threshold)
	}
	return ProbeStatusUp, nil
}

// CredentialsProbe reports degraded, not down, when optional third-party
// credentials are missing: the service still serves generation without them.
type CredentialsProbe struct {
	Required []string

	// LookupEnv overrides os.LookupEnv in tests.
	LookupEnv func(string) (string, bool)
}

func (p *CredentialsProbe) Name() string { return "credentials" }

func (p *CredentialsProbe) Check(ctx context.Context) (ProbeStatus, error) {
	lookup := p.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string
	for _, name := range p.Required {
		if value, ok := lookup(name); !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ProbeStatusDegraded, errors.NewHealthCheckError("credentials not configured: "+strings.Join(missing, ", "), nil)
	}
	return ProbeStatusUp, nil
}

// ProcessProbe checks that the service process recorded in PIDFile is alive.
// Without a PID file it checks the current process.
type ProcessProbe struct {
	PIDFile string
}

func (p *ProcessProbe) Name() string { return "process" }

func (p *ProcessProbe) Check(ctx context.Context) (ProbeStatus, error) {
	pid := os.Getpid()
	if p.PIDFile != "" {
		var err error
		pid, err = processfile.ReadPIDFile(p.PIDFile)
		if err != nil {
			return ProbeStatusDown, err
		}
	}

	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return ProbeStatusDown, errors.NewHealthCheckError("failed to check process", err).WithContext("pid", pid)
	}
	if !running {
		return ProbeStatusDown, errors.NewHealthCheckError(fmt.Sprintf("process not running: PID %d", pid), nil)
	}
	return ProbeStatusUp, nil
}

// NewStandardProbes builds the probe set the service runs.
func NewStandardProbes(config HealthConfig, pidFile string) []Probe {
	return []Probe{
		&StorageProbe{Path: config.StoragePath},
		&MemoryProbe{Threshold: config.MemoryThreshold},
		&CredentialsProbe{Required: config.RequiredCredentials},
		&ProcessProbe{PIDFile: pidFile},
	}
}

func heapRatio(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}
