// Package renewal runs the background task that keeps a credential valid.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/tracing"
)

const (
	DefaultName     = "credential-renewal"
	DefaultInterval = 30 * time.Second
)

// Renewer keeps a credential valid. credential.Handle implements it.
type Renewer interface {
	RenewIfNeeded(ctx context.Context) error
}

// ErrorHandler receives every failed attempt. It runs on the renewal
// goroutine.
type ErrorHandler func(error)

// Config controls the renewal loop.
type Config struct {
	Name     string
	Interval time.Duration
	// AttemptTimeout bounds a single attempt. Zero means Interval.
	AttemptTimeout time.Duration
	// Principal is only used to label logs and spans.
	Principal string
}

func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = c.Interval
	}
}

// State is the lifecycle state of a Task.
type State int32

const (
	StateRunning State = iota
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Task is the handle on a running renewal loop.
type Task struct {
	cfg     Config
	renewer Renewer
	log     logger.Logger
	onError ErrorHandler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state    atomic.Int32
	attempts atomic.Int64
}

// Start launches the renewal loop. The first attempt runs immediately, then
// one attempt per Interval until ctx is cancelled or Cancel is called. A nil
// onError logs the failure and keeps going.
func Start(ctx context.Context, renewer Renewer, cfg Config, log logger.Logger, onError ErrorHandler) (*Task, error) {
	if ctx == nil {
		return nil, renewalError(ErrInvalidArgument, "context is required")
	}
	if renewer == nil {
		return nil, renewalError(ErrInvalidArgument, "renewer is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.normalize()

	t := &Task{
		cfg:     cfg,
		renewer: renewer,
		log:     log.WithContext(ctx).With("task", cfg.Name),
		done:    make(chan struct{}),
	}
	t.onError = onError
	if t.onError == nil {
		t.onError = t.logFailure
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.state.Store(int32(StateRunning))
	setRenewalRunning(cfg.Name, true)

	t.log.Info("renewal task started", "interval", cfg.Interval)
	go t.run()
	return t, nil
}

func (t *Task) run() {
	defer close(t.done)
	defer func() {
		t.state.Store(int32(StateTerminated))
		setRenewalRunning(t.cfg.Name, false)
		t.log.Info("renewal task terminated", "attempts", t.attempts.Load())
	}()

	for {
		if t.ctx.Err() != nil {
			return
		}
		t.attempt()

		timer := time.NewTimer(t.cfg.Interval)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attempt runs one renewal. Panics from the renewer or the error handler are
// contained here so the loop keeps its schedule.
func (t *Task) attempt() {
	defer func() {
		if r := recover(); r != nil {
			recordRenewalPanic(t.cfg.Name)
			t.log.Error("uncaught failure in renewal task", "panic", fmt.Sprint(r))
		}
	}()

	n := t.attempts.Add(1)
	// Cancellation is only observed while sleeping; an attempt in progress
	// runs to completion or to its own timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), t.cfg.AttemptTimeout)
	defer cancel()
	ctx, span := tracing.StartCredentialSpan(ctx, tracing.SpanOperationCredentialRenew, t.cfg.Principal,
		attribute.Int64("renewal.attempt", n),
		attribute.String("renewal.task", t.cfg.Name),
	)

	t.log.Debug("invoking renewal", "attempt", n)
	err := t.invoke(ctx)
	tracing.End(span, err)

	if err != nil {
		outcome := "failure"
		if errors.Is(err, ErrPanic) {
			outcome = "panic"
			recordRenewalPanic(t.cfg.Name)
			t.log.Error("uncaught failure in renewal task", "error", err)
		}
		recordRenewalAttempt(t.cfg.Name, outcome)
		t.onError(err)
		return
	}
	recordRenewalAttempt(t.cfg.Name, "success")
	t.log.Debug("renewal completed", "attempt", n)
}

func (t *Task) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = renewalError(ErrPanic, fmt.Sprint(r))
		}
	}()
	return t.renewer.RenewIfNeeded(ctx)
}

func (t *Task) logFailure(err error) {
	if errors.Is(err, credential.ErrExpired) {
		t.log.Error("credential can no longer be renewed", "error", err)
		return
	}
	t.log.Warn("credential renewal failed, retrying next interval", "error", err)
}

// Name returns the task name.
func (t *Task) Name() string { return t.cfg.Name }

// Cancel requests termination. The loop exits at its next sleep.
func (t *Task) Cancel() { t.cancel() }

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the loop exits or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the task and waits up to timeout for it to exit. It reports
// whether the loop terminated in time; the goroutine is never abandoned
// forcibly, a late loop still exits at its next sleep.
func (t *Task) Stop(timeout time.Duration) bool {
	t.Cancel()
	if timeout <= 0 {
		select {
		case <-t.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Attempts returns how many renewal attempts have started.
func (t *Task) Attempts() int64 { return t.attempts.Load() }
