package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/burnt-beats/beats-core/pkg/logging"
)

// Invoker runs external scripts. Invoke never returns an error: every failure
// mode is encoded in the Result. Stop kills every running child, waits until
// each is reaped, and makes later invocations fail without spawning.
type Invoker interface {
	Invoke(ctx context.Context, inv Invocation) Result
	Stop()
}

// Observer is notified after every invocation completes.
type Observer func(inv Invocation, result Result)

type Option func(*invoker)

func WithObserver(observer Observer) Option {
	return func(i *invoker) {
		i.observers = append(i.observers, observer)
	}
}

func WithWaitDelay(d time.Duration) Option {
	return func(i *invoker) {
		i.waitDelay = d
	}
}

func WithStderrExcerptLimit(limit int) Option {
	return func(i *invoker) {
		i.stderrLimit = limit
	}
}

type invoker struct {
	logger      logging.Logger
	observers   []Observer
	waitDelay   time.Duration
	stderrLimit int

	baseCtx    context.Context
	cancelBase context.CancelFunc
	mutex      sync.Mutex
	stopped    bool
	active     sync.WaitGroup
}

func NewInvoker(logger logging.Logger, opts ...Option) Invoker {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	i := &invoker{
		logger:      logger,
		waitDelay:   DefaultWaitDelay,
		stderrLimit: DefaultStderrExcerptLimit,
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *invoker) Invoke(ctx context.Context, inv Invocation) Result {
	start := time.Now()
	result := i.run(ctx, inv)
	result.Duration = time.Since(start)

	if result.Succeeded() {
		i.logger.Infof("Invocation succeeded, id: %s, pid: %d, duration: %v", inv.ID, result.PID, result.Duration)
	} else {
		i.logger.Warnf("Invocation failed, id: %s, pid: %d, duration: %v, failure: %v, stderr: %s",
			inv.ID, result.PID, result.Duration, result.Failure, result.Failure.StderrExcerpt)
	}

	for _, observer := range i.observers {
		observer(inv, result)
	}
	return result
}

func (i *invoker) Stop() {
	i.mutex.Lock()
	if i.stopped {
		i.mutex.Unlock()
		return
	}
	i.stopped = true
	i.mutex.Unlock()

	i.logger.Infof("Stopping invoker, killing running processes")
	i.cancelBase()
	i.active.Wait()
	i.logger.Infof("Invoker stopped, all processes reaped")
}

// track registers a live invocation; it fails once Stop has begun so no
// child is spawned after Stop returns.
func (i *invoker) track() bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if i.stopped {
		return false
	}
	i.active.Add(1)
	return true
}

func (i *invoker) run(ctx context.Context, inv Invocation) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	if !i.track() {
		i.logger.Warnf("Invocation rejected, invoker is stopped, id: %s", inv.ID)
		return failureResult(inv.ID, &Failure{Reason: ReasonSpawnFailed, Message: "invoker is stopped"})
	}
	defer i.active.Done()

	if err := ValidateInvocation(inv); err != nil {
		i.logger.Errorf("Invocation validation failed, id: %s, error: %v", inv.ID, err)
		return failureResult(inv.ID, &Failure{Reason: ReasonSpawnFailed, Message: err.Error()})
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()
	stopOnShutdown := context.AfterFunc(i.baseCtx, cancel)
	defer stopOnShutdown()

	cmd := exec.Command(inv.ExecutablePath, inv.Args...)
	cmd.Dir = inv.WorkingDirectory
	cmd.Env = append(os.Environ(), inv.Environment...)
	cmd.WaitDelay = i.waitDelay

	// Own process group on unix, so a timeout takes down the script's children too.
	setupProcessAttributes(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	i.logger.Debugf("Starting process, id: %s, executable path: '%s', args: %v, working directory: '%s', timeout: %v",
		inv.ID, inv.ExecutablePath, inv.Args, inv.WorkingDirectory, inv.Timeout)

	if err := cmd.Start(); err != nil {
		return failureResult(inv.ID, &Failure{Reason: ReasonSpawnFailed, Message: err.Error()})
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		i.logger.Warnf("Invocation deadline reached, killing process group, id: %s, pid: %d, cause: %v", inv.ID, pid, runCtx.Err())
		if err := killProcessTree(cmd.Process); err != nil {
			i.logger.Warnf("Failed to kill process, id: %s, pid: %d, error: %v", inv.ID, pid, err)
		}
		// Reap the child so no zombie is left behind.
		<-done

		message := "process exceeded timeout of " + inv.Timeout.String()
		if i.baseCtx.Err() != nil {
			message = "invocation cancelled: invoker stopped"
		} else if ctx.Err() != nil {
			message = "invocation cancelled: " + ctx.Err().Error()
		}
		result := failureResult(inv.ID, &Failure{
			Reason:        ReasonTimeout,
			StderrExcerpt: tail(stderr.Bytes(), i.stderrLimit),
			Message:       message,
		})
		result.PID = pid
		return result
	}

	result := i.interpretExit(inv, waitErr, stdout.Bytes(), stderr.Bytes())
	result.PID = pid
	return result
}

func (i *invoker) interpretExit(inv Invocation, waitErr error, stdout, stderr []byte) Result {
	if waitErr != nil && !stderrors.Is(waitErr, exec.ErrWaitDelay) {
		var exitErr *exec.ExitError
		if stderrors.As(waitErr, &exitErr) {
			exitCode := exitErr.ExitCode()
			return failureResult(inv.ID, &Failure{
				Reason:        ReasonNonZeroExit,
				ExitCode:      &exitCode,
				StderrExcerpt: tail(stderr, i.stderrLimit),
				Message:       exitErr.Error(),
			})
		}
		return failureResult(inv.ID, &Failure{
			Reason:        ReasonSpawnFailed,
			StderrExcerpt: tail(stderr, i.stderrLimit),
			Message:       waitErr.Error(),
		})
	}

	if waitErr != nil {
		i.logger.Warnf("Process exited but its output stayed open past the wait delay, id: %s", inv.ID)
	}

	payload, ok := extractPayload(stdout)
	if !ok {
		exitCode := 0
		return failureResult(inv.ID, &Failure{
			Reason:        ReasonOutputParseFailed,
			ExitCode:      &exitCode,
			StderrExcerpt: tail(stderr, i.stderrLimit),
			Message:       "no structured payload found on stdout",
		})
	}
	return successResult(inv.ID, payload, string(stdout))
}
