package krb5

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/lib/pq"
)

// ErrNoActiveClient is returned by the transport before the first login.
var ErrNoActiveClient = errors.New("krb5: no active kerberos client")

// RegisterTransport makes lib/pq authenticate GSS connections with the active
// client. Each new connection picks up whatever client is active at dial time.
func (a *Authority) RegisterTransport() {
	pq.RegisterGSSProvider(a.newGSS)
}

func (a *Authority) newGSS() (pq.GSS, error) {
	cl := a.active.Load()
	if cl == nil {
		return nil, ErrNoActiveClient
	}
	return &gss{cl: cl, lookupCNAME: net.LookupCNAME}, nil
}

// gss implements pq.GSS over SPNEGO.
type gss struct {
	cl          *client.Client
	lookupCNAME func(host string) (string, error)
}

func (g *gss) GetInitToken(host, service string) ([]byte, error) {
	if g.cl.Config != nil && g.cl.Config.LibDefaults.DNSCanonicalizeHostname && g.lookupCNAME != nil {
		if cname, err := g.lookupCNAME(host); err == nil {
			host = strings.TrimSuffix(cname, ".")
		}
	}
	return g.GetInitTokenFromSpn(service + "/" + host)
}

func (g *gss) GetInitTokenFromSpn(spn string) ([]byte, error) {
	token, err := spnego.SPNEGOClient(g.cl, spn).InitSecContext()
	if err != nil {
		return nil, fmt.Errorf("krb5: init security context for %s: %w", spn, err)
	}
	b, err := token.Marshal()
	if err != nil {
		return nil, fmt.Errorf("krb5: marshal security context for %s: %w", spn, err)
	}
	return b, nil
}

func (g *gss) Continue(inToken []byte) (bool, []byte, error) {
	var token spnego.SPNEGOToken
	if err := token.Unmarshal(inToken); err != nil {
		return true, nil, fmt.Errorf("krb5: unmarshal server token: %w", err)
	}
	if !token.Resp {
		return true, nil, errors.New("krb5: expected a negotiation response from the server")
	}
	if state := token.NegTokenResp.State(); state != spnego.NegStateAcceptCompleted {
		return true, nil, fmt.Errorf("krb5: server negotiation state %d, want accept-completed", state)
	}
	return true, nil, nil
}
