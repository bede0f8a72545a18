// Package krb5 logs principals in from keytabs against a Kerberos KDC and
// exposes the resulting client to the database transport.
package krb5

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"

	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/resilience"
	"github.com/nimburion/ticketwarden/pkg/security"
)

const (
	DefaultKrb5ConfPath = "/etc/krb5.conf"
	DefaultLoginTimeout = 30 * time.Second
	DefaultRetireDelay  = time.Minute
)

// Config configures an Authority.
type Config struct {
	Krb5ConfPath string
	// Realm overrides libdefaults.default_realm for principals without a realm.
	Realm string
	// TicketLifetime and RenewLifetime override the krb5.conf values when set.
	// The KDC may still issue shorter tickets.
	TicketLifetime  time.Duration
	RenewLifetime   time.Duration
	DisablePAFXFAST bool
	LoginTimeout    time.Duration
	// RetireDelay is how long a replaced client stays usable for handshakes
	// that started before the swap.
	RetireDelay time.Duration
	// MaxLoginFailures consecutive failures pause logins for FailureCooldown.
	// Zero disables the pause.
	MaxLoginFailures int
	FailureCooldown  time.Duration
}

func (c *Config) normalize() {
	if c.Krb5ConfPath == "" {
		c.Krb5ConfPath = DefaultKrb5ConfPath
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.RetireDelay <= 0 {
		c.RetireDelay = DefaultRetireDelay
	}
}

// Authority implements credential.Authority with gokrb5. The most recent
// successful login is the active client used by the transport.
type Authority struct {
	cfg      Config
	krb5conf *config.Config
	log      logger.Logger
	breaker  *resilience.Breaker
	clock    func() time.Time

	// exchange performs the AS exchange and returns the decrypted reply part;
	// replaced in tests.
	exchange func(*client.Client) (messages.EncKDCRepPart, error)

	loginMu sync.Mutex
	active  atomic.Pointer[client.Client]
	// abandoned counts clients waiting for a failed exchange to return
	// before they are destroyed.
	abandoned sync.WaitGroup

	retireMu sync.Mutex
	retiring map[*client.Client]*time.Timer
	closed   bool
}

// NewAuthority loads krb5.conf from cfg.Krb5ConfPath.
func NewAuthority(cfg Config, log logger.Logger) (*Authority, error) {
	cfg.normalize()
	krb5conf, err := config.Load(cfg.Krb5ConfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load krb5 config %s: %v", credential.ErrAuthentication, cfg.Krb5ConfPath, err)
	}
	return newAuthority(cfg, krb5conf, log), nil
}

func newAuthority(cfg Config, krb5conf *config.Config, log logger.Logger) *Authority {
	cfg.normalize()
	if log == nil {
		log = logger.Nop()
	}
	if cfg.TicketLifetime > 0 {
		krb5conf.LibDefaults.TicketLifetime = cfg.TicketLifetime
	}
	if cfg.RenewLifetime > 0 {
		krb5conf.LibDefaults.RenewLifetime = cfg.RenewLifetime
	}
	return &Authority{
		cfg:      cfg,
		krb5conf: krb5conf,
		log:      log,
		breaker:  resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: cfg.MaxLoginFailures, Cooldown: cfg.FailureCooldown}),
		clock:    time.Now,
		exchange: asExchange,
		retiring: make(map[*client.Client]*time.Timer),
	}
}

// Login performs an AS exchange for principal with the keys in keytabPath.
func (a *Authority) Login(ctx context.Context, principal, keytabPath string) (credential.Ticket, error) {
	user, realm, err := splitPrincipal(principal, a.defaultRealm())
	if err != nil {
		return credential.Ticket{}, fmt.Errorf("%w: %v", credential.ErrAuthentication, err)
	}
	info, err := security.CheckSecretFile(keytabPath)
	if err != nil {
		return credential.Ticket{}, fmt.Errorf("%w: keytab %s: %v", credential.ErrAuthentication, keytabPath, err)
	}
	if security.WorldReadable(info) {
		a.log.Warn("keytab is readable by other users", "keytab", keytabPath, "mode", info.Mode().Perm().String())
	}
	kt, err := keytab.Load(keytabPath)
	if err != nil {
		return credential.Ticket{}, fmt.Errorf("%w: malformed keytab %s: %v", credential.ErrAuthentication, keytabPath, err)
	}

	a.loginMu.Lock()
	defer a.loginMu.Unlock()

	cl := client.NewWithKeytab(user, realm, kt, a.krb5conf, client.DisablePAFXFAST(a.cfg.DisablePAFXFAST))
	var (
		part     messages.EncKDCRepPart
		started  bool
		finished = make(chan struct{})
	)
	err = a.breaker.Do(func() error {
		started = true
		return resilience.WithTimeout(ctx, a.cfg.LoginTimeout, func(context.Context) error {
			defer close(finished)
			var err error
			part, err = a.exchange(cl)
			return err
		})
	})
	if err != nil {
		if !started {
			close(finished)
		}
		a.discard(cl, finished)
		return credential.Ticket{}, fmt.Errorf("kerberos login of %s@%s: %w", user, realm, err)
	}

	a.activate(cl)

	ticket := issuedTicket(user+"@"+realm, part, a.clock())
	if lifetime := ticket.EndTime.Sub(ticket.AuthTime); lifetime < a.krb5conf.LibDefaults.TicketLifetime {
		a.log.Info("kdc issued a shorter ticket than requested",
			"principal", ticket.Principal,
			"requested", a.krb5conf.LibDefaults.TicketLifetime,
			"issued", lifetime,
		)
	}
	a.log.Debug("kerberos login completed", "principal", ticket.Principal, "end_time", ticket.EndTime, "renew_till", ticket.RenewTill)
	return ticket, nil
}

// asExchange requests a TGT for the client's principal. The client obtains
// its own session from the same keytab on the first transport handshake.
func asExchange(cl *client.Client) (messages.EncKDCRepPart, error) {
	req, err := messages.NewASReqForTGT(cl.Credentials.Domain(), cl.Config, cl.Credentials.CName())
	if err != nil {
		return messages.EncKDCRepPart{}, fmt.Errorf("build AS-REQ: %w", err)
	}
	rep, err := cl.ASExchange(cl.Credentials.Domain(), req, 0)
	if err != nil {
		return messages.EncKDCRepPart{}, err
	}
	return rep.DecryptedEncPart, nil
}

// issuedTicket takes the validity window from the KDC reply. A ticket that
// is not renewable has RenewTill equal to EndTime.
func issuedTicket(principal string, part messages.EncKDCRepPart, now time.Time) credential.Ticket {
	authTime := part.AuthTime
	if authTime.IsZero() {
		authTime = now
	}
	renewTill := part.RenewTill
	if renewTill.Before(part.EndTime) {
		renewTill = part.EndTime
	}
	return credential.Ticket{
		Principal: principal,
		AuthTime:  authTime,
		EndTime:   part.EndTime,
		RenewTill: renewTill,
	}
}

// discard destroys a client whose exchange failed. After a timeout the
// exchange may still be running, so destruction waits for finished.
func (a *Authority) discard(cl *client.Client, finished <-chan struct{}) {
	a.abandoned.Add(1)
	go func() {
		defer a.abandoned.Done()
		<-finished
		cl.Destroy()
	}()
}

// activate makes cl the active client and schedules the previous one for
// destruction.
func (a *Authority) activate(cl *client.Client) {
	prev := a.active.Swap(cl)
	if prev == nil {
		return
	}

	a.retireMu.Lock()
	defer a.retireMu.Unlock()
	if a.closed {
		prev.Destroy()
		return
	}
	a.retiring[prev] = time.AfterFunc(a.cfg.RetireDelay, func() {
		prev.Destroy()
		a.retireMu.Lock()
		delete(a.retiring, prev)
		a.retireMu.Unlock()
	})
}

func (a *Authority) defaultRealm() string {
	if a.cfg.Realm != "" {
		return a.cfg.Realm
	}
	return a.krb5conf.LibDefaults.DefaultRealm
}

// Client returns the active client, or nil before the first login.
func (a *Authority) Client() *client.Client {
	return a.active.Load()
}

// HealthCheck fails until a login has succeeded.
func (a *Authority) HealthCheck(context.Context) error {
	if a.active.Load() == nil {
		return errors.New("no kerberos client is logged in")
	}
	if state := a.breaker.State(); state == resilience.StateOpen {
		return fmt.Errorf("kerberos logins paused: %w", resilience.ErrBreakerOpen)
	}
	return nil
}

// Close destroys the active client and every client awaiting retirement.
func (a *Authority) Close() error {
	a.retireMu.Lock()
	a.closed = true
	for cl, timer := range a.retiring {
		timer.Stop()
		cl.Destroy()
	}
	a.retiring = map[*client.Client]*time.Timer{}
	a.retireMu.Unlock()

	if cl := a.active.Swap(nil); cl != nil {
		cl.Destroy()
	}
	return nil
}

func (a *Authority) retiringCount() int {
	a.retireMu.Lock()
	defer a.retireMu.Unlock()
	return len(a.retiring)
}
