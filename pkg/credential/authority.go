package credential

import (
	"context"
	"time"
)

// Ticket is the validity window of a credential issued by an Authority.
type Ticket struct {
	Principal string
	AuthTime  time.Time
	// EndTime closes the primary lifetime.
	EndTime time.Time
	// RenewTill closes the grace lifetime during which a re-login from the
	// original source is still allowed.
	RenewTill time.Time
}

// Authority issues tickets from credential source material such as a keytab.
type Authority interface {
	Login(ctx context.Context, principal, source string) (Ticket, error)
}

// AuthorityFunc adapts a function to the Authority interface.
type AuthorityFunc func(ctx context.Context, principal, source string) (Ticket, error)

func (f AuthorityFunc) Login(ctx context.Context, principal, source string) (Ticket, error) {
	return f(ctx, principal, source)
}
