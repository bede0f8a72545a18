package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimburion/ticketwarden/pkg/testutil"
)

func newTestHandle(t *testing.T, clock *fakeClock, authority *fakeAuthority) *Handle {
	t.Helper()
	h, err := Login(context.Background(), authority, "renewal1", "/etc/renewal1.keytab", testutil.NewMockLogger(), Options{Clock: clock.Now})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	return h
}

func TestLogin_Validation(t *testing.T) {
	authority := AuthorityFunc(func(context.Context, string, string) (Ticket, error) {
		return Ticket{}, nil
	})

	tests := []struct {
		name      string
		authority Authority
		principal string
		source    string
	}{
		{name: "nil authority", authority: nil, principal: "renewal1", source: "/k"},
		{name: "empty principal", authority: authority, principal: "  ", source: "/k"},
		{name: "empty source", authority: authority, principal: "renewal1", source: ""},
		{name: "unusable ticket", authority: authority, principal: "renewal1", source: "/k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Login(context.Background(), tt.authority, tt.principal, tt.source, nil, Options{})
			if !errors.Is(err, ErrAuthentication) {
				t.Fatalf("expected ErrAuthentication, got %v", err)
			}
		})
	}
}

func TestLogin_AuthorityRejection(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: time.Minute, grace: 2 * time.Minute}
	authority.fail.Store(true)

	_, err := Login(context.Background(), authority, "renewal1", "/missing.keytab", nil, Options{Clock: clock.Now})
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestRenewIfNeeded_FreshTicketIsNoop(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)

	if err := h.RenewIfNeeded(context.Background()); err != nil {
		t.Fatalf("RenewIfNeeded() error = %v", err)
	}
	if got := authority.calls.Load(); got != 1 {
		t.Fatalf("expected only the login call, got %d", got)
	}
	if got := h.Status().Renewals; got != 0 {
		t.Fatalf("expected 0 renewals, got %d", got)
	}
}

func TestRenewIfNeeded_WithinGraceRenews(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)

	clock.Advance(11 * time.Minute)
	if h.Valid() {
		t.Fatal("expected primary lifetime to be over")
	}

	if err := h.RenewIfNeeded(context.Background()); err != nil {
		t.Fatalf("RenewIfNeeded() error = %v", err)
	}
	if !h.Valid() {
		t.Fatal("expected handle to be valid after renewal")
	}
	status := h.Status()
	if status.Renewals != 1 {
		t.Fatalf("expected 1 renewal, got %d", status.Renewals)
	}
	if !status.ExpiresAt.Equal(clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", status.ExpiresAt)
	}
}

func TestRenewIfNeeded_PastRefreshPointRenews(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)

	clock.Advance(8*time.Minute + time.Second)
	if err := h.RenewIfNeeded(context.Background()); err != nil {
		t.Fatalf("RenewIfNeeded() error = %v", err)
	}
	if got := authority.calls.Load(); got != 2 {
		t.Fatalf("expected a re-login, got %d authority calls", got)
	}
}

func TestRenewIfNeeded_AfterGraceExpires(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)

	clock.Advance(16 * time.Minute)
	err := h.RenewIfNeeded(context.Background())
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if got := authority.calls.Load(); got != 1 {
		t.Fatalf("expected no re-login past the grace lifetime, got %d calls", got)
	}
	if h.Status().LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
	if err := h.HealthCheck(context.Background()); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected HealthCheck to report ErrExpired, got %v", err)
	}
}

func TestRenewIfNeeded_FailureIsRenewalError(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)

	clock.Advance(9 * time.Minute)
	authority.fail.Store(true)
	err := h.RenewIfNeeded(context.Background())
	if !errors.Is(err, ErrRenewal) {
		t.Fatalf("expected ErrRenewal, got %v", err)
	}
	if !h.Valid() {
		t.Fatal("a failed renewal must not invalidate the current ticket")
	}

	authority.fail.Store(false)
	if err := h.RenewIfNeeded(context.Background()); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if h.Status().LastError != "" {
		t.Fatal("expected last error to be cleared after a successful renewal")
	}
}

func TestRenewIfNeeded_ConcurrentCallersShareRelogin(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h := newTestHandle(t, clock, authority)
	clock.Advance(12 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.RenewIfNeeded(context.Background()); err != nil {
				t.Errorf("RenewIfNeeded() error = %v", err)
			}
			_ = h.Valid()
		}()
	}
	wg.Wait()

	if got := h.Status().Renewals; got != 1 {
		t.Fatalf("expected exactly one renewal, got %d", got)
	}
}

func TestStatus_RefreshAtUsesThreshold(t *testing.T) {
	clock := newFakeClock()
	authority := &fakeAuthority{clock: clock.Now, lifetime: 10 * time.Minute, grace: 15 * time.Minute}
	h, err := Login(context.Background(), authority, "renewal1@EXAMPLE.COM", "/k", nil, Options{Clock: clock.Now, RefreshThreshold: 0.5})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	status := h.Status()
	if want := clock.Now().Add(5 * time.Minute); !status.RefreshAt.Equal(want) {
		t.Fatalf("RefreshAt = %v, want %v", status.RefreshAt, want)
	}
	if status.Principal != "renewal1@EXAMPLE.COM" || status.Source != "/k" {
		t.Fatalf("unexpected status %+v", status)
	}
	if !status.Valid {
		t.Fatal("expected valid status")
	}
}
