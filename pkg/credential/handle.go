// Package credential holds the process-wide authenticated principal and the
// renew-if-needed logic that keeps its ticket valid.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

// DefaultRefreshThreshold is the fraction of the primary lifetime after which
// RenewIfNeeded starts re-logging in.
const DefaultRefreshThreshold = 0.8

// Options tunes a Handle.
type Options struct {
	// RefreshThreshold in (0, 1]. With 1 a re-login only happens once the
	// primary lifetime is over.
	RefreshThreshold float64
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o *Options) normalize() {
	if o.RefreshThreshold <= 0 || o.RefreshThreshold > 1 {
		o.RefreshThreshold = DefaultRefreshThreshold
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Status is a point-in-time view of a Handle.
type Status struct {
	Principal   string    `json:"principal" yaml:"principal"`
	Source      string    `json:"source" yaml:"source"`
	Valid       bool      `json:"valid" yaml:"valid"`
	AuthTime    time.Time `json:"auth_time" yaml:"auth_time"`
	RefreshAt   time.Time `json:"refresh_at" yaml:"refresh_at"`
	ExpiresAt   time.Time `json:"expires_at" yaml:"expires_at"`
	RenewTill   time.Time `json:"renew_till" yaml:"renew_till"`
	Renewals    int       `json:"renewals" yaml:"renewals"`
	LastRenewal time.Time `json:"last_renewal,omitempty" yaml:"last_renewal,omitempty"`
	LastError   string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Handle represents the logged-in principal. RenewIfNeeded may be called from
// any goroutine while the transport keeps using the current credential.
type Handle struct {
	principal string
	source    string
	authority Authority
	log       logger.Logger
	opts      Options

	mu          sync.RWMutex
	ticket      Ticket
	renewals    int
	lastRenewal time.Time
	lastErr     error

	relogin singleflight.Group
}

// Login authenticates principal from source and returns the new Handle.
func Login(ctx context.Context, authority Authority, principal, source string, log logger.Logger, opts Options) (*Handle, error) {
	if authority == nil {
		return nil, credentialError(ErrAuthentication, "authority is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	principal = strings.TrimSpace(principal)
	source = strings.TrimSpace(source)
	if principal == "" {
		return nil, credentialError(ErrAuthentication, "principal is required")
	}
	if source == "" {
		return nil, credentialError(ErrAuthentication, "credential source is required")
	}
	opts.normalize()

	ticket, err := authority.Login(ctx, principal, source)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			return nil, err
		}
		return nil, errors.Join(credentialError(ErrAuthentication, fmt.Sprintf("login of %s failed", principal)), err)
	}
	if err := validateTicket(ticket); err != nil {
		return nil, errors.Join(credentialError(ErrAuthentication, "authority returned an unusable ticket"), err)
	}

	h := &Handle{
		principal: principal,
		source:    source,
		authority: authority,
		log:       log.With("principal", principal),
		opts:      opts,
		ticket:    ticket,
	}
	h.log.Info("logged in from credential source",
		"source", source,
		"expires_at", ticket.EndTime,
		"renew_till", ticket.RenewTill,
	)
	return h, nil
}

// RenewIfNeeded keeps the ticket valid. It is a no-op while the ticket is
// fresh, re-logs in from the original source once the refresh point has
// passed, and fails with ErrExpired after the grace lifetime.
func (h *Handle) RenewIfNeeded(ctx context.Context) error {
	now := h.opts.Clock()

	h.mu.RLock()
	ticket := h.ticket
	h.mu.RUnlock()

	if now.Before(h.refreshAt(ticket)) {
		return nil
	}
	if !now.Before(ticket.RenewTill) {
		err := credentialError(ErrExpired, fmt.Sprintf("grace lifetime ended at %s", ticket.RenewTill.Format(time.RFC3339)))
		h.recordFailure(err)
		return err
	}

	_, err, _ := h.relogin.Do("relogin", func() (interface{}, error) {
		return nil, h.reloginFromSource(ctx, ticket)
	})
	return err
}

func (h *Handle) reloginFromSource(ctx context.Context, seen Ticket) error {
	h.mu.RLock()
	current := h.ticket
	h.mu.RUnlock()
	if current.AuthTime.After(seen.AuthTime) {
		// Another caller already refreshed the ticket.
		return nil
	}

	ticket, err := h.authority.Login(ctx, h.principal, h.source)
	if err == nil {
		err = validateTicket(ticket)
	}
	if err != nil {
		wrapped := errors.Join(credentialError(ErrRenewal, fmt.Sprintf("re-login of %s from %s failed", h.principal, h.source)), err)
		h.recordFailure(wrapped)
		return wrapped
	}

	h.mu.Lock()
	h.ticket = ticket
	h.renewals++
	h.lastRenewal = h.opts.Clock()
	h.lastErr = nil
	h.mu.Unlock()

	h.log.Info("re-logged in from credential source",
		"expires_at", ticket.EndTime,
		"renew_till", ticket.RenewTill,
	)
	return nil
}

func (h *Handle) recordFailure(err error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
}

func (h *Handle) refreshAt(t Ticket) time.Time {
	lifetime := t.EndTime.Sub(t.AuthTime)
	return t.AuthTime.Add(time.Duration(float64(lifetime) * h.opts.RefreshThreshold))
}

// Valid reports whether the primary lifetime of the current ticket is still open.
func (h *Handle) Valid() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.opts.Clock().Before(h.ticket.EndTime)
}

// Principal returns the authenticated principal name.
func (h *Handle) Principal() string {
	return h.principal
}

// Status returns a snapshot of the handle.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := Status{
		Principal:   h.principal,
		Source:      h.source,
		Valid:       h.opts.Clock().Before(h.ticket.EndTime),
		AuthTime:    h.ticket.AuthTime,
		RefreshAt:   h.refreshAt(h.ticket),
		ExpiresAt:   h.ticket.EndTime,
		RenewTill:   h.ticket.RenewTill,
		Renewals:    h.renewals,
		LastRenewal: h.lastRenewal,
	}
	if h.lastErr != nil {
		status.LastError = h.lastErr.Error()
	}
	return status
}

// HealthCheck fails once the primary lifetime has elapsed.
func (h *Handle) HealthCheck(context.Context) error {
	if h.Valid() {
		return nil
	}
	h.mu.RLock()
	expiredAt := h.ticket.EndTime
	h.mu.RUnlock()
	return credentialError(ErrExpired, fmt.Sprintf("ticket for %s expired at %s", h.principal, expiredAt.Format(time.RFC3339)))
}

func validateTicket(t Ticket) error {
	if t.AuthTime.IsZero() || t.EndTime.IsZero() {
		return errors.New("ticket auth time and end time are required")
	}
	if !t.EndTime.After(t.AuthTime) {
		return errors.New("ticket end time must be after auth time")
	}
	if t.RenewTill.Before(t.EndTime) {
		return errors.New("ticket renew-till must not precede end time")
	}
	return nil
}
