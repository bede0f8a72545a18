package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCredentialChecker_NothingInstalled(t *testing.T) {
	checker := &CredentialChecker{name: "credential", current: func() (*credential.Handle, bool) { return nil, false }}

	result := checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
}

func TestCredentialChecker_Lifecycle(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	var failing bool
	authority := credential.AuthorityFunc(func(_ context.Context, principal, _ string) (credential.Ticket, error) {
		if failing {
			return credential.Ticket{}, errors.New("kdc unreachable")
		}
		now := clock.Now()
		return credential.Ticket{
			Principal: principal,
			AuthTime:  now,
			EndTime:   now.Add(10 * time.Minute),
			RenewTill: now.Add(15 * time.Minute),
		}, nil
	})

	h, err := credential.Login(context.Background(), authority, "renewal1@EXAMPLE.COM", "/etc/renewal1.keytab",
		logger.Nop(), credential.Options{Clock: clock.Now})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	checker := &CredentialChecker{name: "credential", current: func() (*credential.Handle, bool) { return h, true }}

	result := checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Fatalf("fresh credential: expected healthy, got %s (%s)", result.Status, result.Error)
	}
	if result.Metadata["principal"] != "renewal1@EXAMPLE.COM" {
		t.Fatalf("unexpected metadata %v", result.Metadata)
	}

	failing = true
	clock.Advance(9 * time.Minute)
	if err := h.RenewIfNeeded(context.Background()); err == nil {
		t.Fatal("expected renewal failure")
	}
	if result := checker.Check(context.Background()); result.Status != StatusDegraded {
		t.Fatalf("failed renewal: expected degraded, got %s", result.Status)
	}

	clock.Advance(2 * time.Minute)
	if result := checker.Check(context.Background()); result.Status != StatusUnhealthy {
		t.Fatalf("past end time: expected unhealthy, got %s", result.Status)
	}
}
