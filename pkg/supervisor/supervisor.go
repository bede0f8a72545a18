// Package supervisor wires the credential, its renewal task and the workload
// into one run.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/tracing"
	"github.com/nimburion/ticketwarden/pkg/renewal"
)

// DefaultStopTimeout bounds the wait for the renewal task on shutdown.
const DefaultStopTimeout = time.Second

// ErrInvalidArgument classifies invalid Options.
var ErrInvalidArgument = errors.New("supervisor invalid argument")

// Workload is the foreground job that uses the credential implicitly.
type Workload interface {
	Run(ctx context.Context) error
}

// WorkloadFunc adapts a function to Workload.
type WorkloadFunc func(ctx context.Context) error

func (f WorkloadFunc) Run(ctx context.Context) error { return f(ctx) }

// Options configures a Supervisor.
type Options struct {
	Authority credential.Authority
	Principal string
	// Source is the credential source, a keytab path for Kerberos.
	Source string

	RenewalInterval       time.Duration
	RenewalAttemptTimeout time.Duration
	RefreshThreshold      float64
	StopTimeout           time.Duration

	// OnRenewalError replaces the default log-and-continue handling.
	OnRenewalError renewal.ErrorHandler
	// OnLogin runs after the handle is installed and before renewal starts,
	// e.g. to register it with a health registry.
	OnLogin func(*credential.Handle)
}

// Supervisor runs login, background renewal and the workload.
type Supervisor struct {
	opts Options
	log  logger.Logger

	mu     sync.RWMutex
	handle *credential.Handle
}

// New validates opts.
func New(opts Options, log logger.Logger) (*Supervisor, error) {
	if opts.Authority == nil {
		return nil, fmt.Errorf("%w: authority is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(opts.Principal) == "" {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(opts.Source) == "" {
		return nil, fmt.Errorf("%w: credential source is required", ErrInvalidArgument)
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{opts: opts, log: log}, nil
}

// Run logs in, installs the credential for the process, starts renewal and
// runs workload in the foreground. Renewal is always cancelled and given at
// most StopTimeout to exit before Run returns the workload's error.
func (s *Supervisor) Run(ctx context.Context, workload Workload) (err error) {
	if workload == nil {
		return fmt.Errorf("%w: workload is required", ErrInvalidArgument)
	}
	if logger.RunIDFromContext(ctx) == "" {
		ctx = logger.ContextWithRunID(ctx, uuid.NewString())
	}
	log := s.log.WithContext(ctx)

	handle, err := s.login(ctx)
	if err != nil {
		log.Error("login failed", "principal", s.opts.Principal, "source", s.opts.Source, "error", err)
		return err
	}
	if err := credential.Install(handle); err != nil {
		return err
	}
	defer credential.Release(handle)

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	if s.opts.OnLogin != nil {
		s.opts.OnLogin(handle)
	}

	task, err := renewal.Start(ctx, handle, renewal.Config{
		Interval:       s.opts.RenewalInterval,
		AttemptTimeout: s.opts.RenewalAttemptTimeout,
		Principal:      handle.Principal(),
	}, s.log, s.opts.OnRenewalError)
	if err != nil {
		return err
	}
	defer func() {
		if !task.Stop(s.opts.StopTimeout) {
			log.Warn("renewal task did not stop in time, exiting anyway", "timeout", s.opts.StopTimeout)
		}
	}()

	log.Info("starting workload", "principal", handle.Principal())
	err = workload.Run(ctx)
	if err != nil {
		log.Error("workload failed", "error", err)
	} else {
		log.Info("workload finished")
	}
	return err
}

func (s *Supervisor) login(ctx context.Context) (handle *credential.Handle, err error) {
	ctx, span := tracing.StartCredentialSpan(ctx, tracing.SpanOperationCredentialLogin, s.opts.Principal)
	defer func() { tracing.End(span, err) }()

	return credential.Login(ctx, s.opts.Authority, s.opts.Principal, s.opts.Source, s.log.WithContext(ctx), credential.Options{
		RefreshThreshold: s.opts.RefreshThreshold,
	})
}

// Handle returns the credential of the current run, or nil before login.
func (s *Supervisor) Handle() *credential.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}
