package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAuthority struct {
	clock    func() time.Time
	lifetime time.Duration
	grace    time.Duration
	fail     atomic.Bool
	calls    atomic.Int32
}

func (a *fakeAuthority) Login(_ context.Context, principal, _ string) (Ticket, error) {
	a.calls.Add(1)
	if a.fail.Load() {
		return Ticket{}, errors.New("kdc unreachable")
	}
	now := a.clock()
	return Ticket{
		Principal: principal,
		AuthTime:  now,
		EndTime:   now.Add(a.lifetime),
		RenewTill: now.Add(a.grace),
	}, nil
}
