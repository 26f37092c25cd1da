package shutdown

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/burnt-beats/beats-core/pkg/errors"
	"github.com/burnt-beats/beats-core/pkg/logging"
	"github.com/burnt-beats/beats-core/pkg/monitoring"
)

type State string

const (
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

var AllStates = []string{string(StateRunning), string(StateDraining), string(StateStopped)}

const DefaultDrainTimeout = 30 * time.Second

// Stopper is anything with background work to halt before draining, such as
// the health aggregator's ticker.
type Stopper interface {
	Stop()
}

// HealthChecker runs the final health check logged at shutdown.
type HealthChecker interface {
	CheckHealth(ctx context.Context) monitoring.Snapshot
}

type Option func(*Coordinator)

func WithDrainTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.drainTimeout = timeout
	}
}

func WithStopper(stopper Stopper) Option {
	return func(c *Coordinator) {
		c.stoppers = append(c.stoppers, stopper)
	}
}

// WithAfterDrain registers a stopper that runs once the HTTP server is shut
// down or force closed, before the coordinator reports Stopped. Handlers cut
// off by a forced close may still own child processes; the invoker goes here.
func WithAfterDrain(stopper Stopper) Option {
	return func(c *Coordinator) {
		c.afterDrain = append(c.afterDrain, stopper)
	}
}

func WithFinalHealthCheck(checker HealthChecker) Option {
	return func(c *Coordinator) {
		c.finalCheck = checker
	}
}

func WithStateObserver(observer func(State)) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, observer)
	}
}

func WithSignals(signals ...os.Signal) Option {
	return func(c *Coordinator) {
		c.signals = signals
	}
}

// Coordinator owns the process lifetime: it serves HTTP until the first
// termination request, then moves Running -> Draining -> Stopped exactly once.
type Coordinator struct {
	server       *http.Server
	listener     net.Listener
	logger       logging.Logger
	drainTimeout time.Duration
	stoppers     []Stopper
	afterDrain   []Stopper
	finalCheck   HealthChecker
	observers    []func(State)
	signals      []os.Signal

	mutex     sync.Mutex
	state     State
	triggered bool
	trigger   chan string
	ready     chan struct{}
	done      chan struct{}
}

func NewCoordinator(server *http.Server, listener net.Listener, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		server:       server,
		listener:     listener,
		logger:       logger,
		drainTimeout: DefaultDrainTimeout,
		signals:      []os.Signal{os.Interrupt, syscall.SIGTERM},
		state:        StateRunning,
		trigger:      make(chan string, 1),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Serve blocks until shutdown completes. It returns nil after a requested
// shutdown and the server error if serving failed on its own.
func (c *Coordinator) Serve() error {
	sig := make(chan os.Signal, 1)
	if len(c.signals) > 0 {
		signal.Notify(sig, c.signals...)
		defer signal.Stop(sig)
	}

	go c.forwardSignals(sig)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- c.server.Serve(c.listener)
	}()

	c.notify(StateRunning)
	c.logger.Infof("Service is serving, address: %s, drain timeout: %v", c.listener.Addr(), c.drainTimeout)
	close(c.ready)

	var result error
	var reason string
	select {
	case reason = <-c.trigger:
	case err := <-serveErr:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("HTTP server failed, error: %v", err)
			result = errors.NewInternalError("http server failed", err)
		}
		c.Trigger("server exited")
		reason = <-c.trigger
	}

	c.drain(reason)
	return result
}

// Trigger starts shutdown. Only the first call has an effect; it reports
// whether this call initiated shutdown.
func (c *Coordinator) Trigger(reason string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.triggered {
		c.logger.Warnf("Shutdown already in progress, ignoring request, reason: %s", reason)
		return false
	}
	c.triggered = true
	c.trigger <- reason
	return true
}

func (c *Coordinator) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Ready is closed once the coordinator is serving and listening for signals.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed once the coordinator reaches Stopped.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) forwardSignals(sig chan os.Signal) {
	for {
		select {
		case s := <-sig:
			c.logger.Infof("Received signal: %v", s)
			c.Trigger("signal " + s.String())
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) drain(reason string) {
	start := time.Now()
	c.setState(StateDraining)
	c.logger.Infof("Shutdown initiated, reason: %s, drain timeout: %v", reason, c.drainTimeout)

	for _, stopper := range c.stoppers {
		stopper.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()

	if err := c.server.Shutdown(ctx); err != nil {
		c.logger.Warnf("Drain did not finish in time, force closing connections, error: %v", err)
		if err := c.server.Close(); err != nil {
			c.logger.Errorf("Failed to force close server, error: %v", err)
		}
	} else {
		c.logger.Infof("All in-flight requests drained, elapsed: %v", time.Since(start))
	}

	for _, stopper := range c.afterDrain {
		stopper.Stop()
	}

	if c.finalCheck != nil {
		snapshot := c.finalCheck.CheckHealth(context.Background())
		c.logger.Infof("Final health check, status: %s, probes: %d", snapshot.Status, len(snapshot.Probes))
	}

	c.setState(StateStopped)
	c.logger.Infof("Shutdown complete, elapsed: %v", time.Since(start))
	close(c.done)
}

func (c *Coordinator) setState(state State) {
	c.mutex.Lock()
	previous := c.state
	c.state = state
	c.mutex.Unlock()

	c.logger.Debugf("Shutdown state changed, state: %s->%s", previous, state)
	c.notify(state)
}

func (c *Coordinator) notify(state State) {
	for _, observer := range c.observers {
		observer(state)
	}
}
