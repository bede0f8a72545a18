package health

import (
	"context"
	"time"

	"github.com/nimburion/ticketwarden/pkg/credential"
)

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker creates a health checker for any component that implements Checkable
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	duration := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:      c.name,
			Status:    StatusUnhealthy,
			Error:     err.Error(),
			Timestamp: time.Now(),
			Duration:  duration,
		}
	}

	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// NewDatabaseChecker creates a health checker for a database adapter
func NewDatabaseChecker(name string, db Checkable) *AdapterChecker {
	return NewAdapterChecker(name, db, 5*time.Second)
}

// PingChecker always reports healthy. Used for liveness.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{
		name: name,
	}
}

// Check always returns healthy status
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "Service is alive",
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}

// CredentialChecker reports on the installed credential handle. A valid
// credential whose last renewal failed is degraded.
type CredentialChecker struct {
	name    string
	current func() (*credential.Handle, bool)
}

// NewCredentialChecker checks the process-wide credential slot.
func NewCredentialChecker(name string) *CredentialChecker {
	return &CredentialChecker{name: name, current: credential.Current}
}

// Check inspects the handle without touching the authority.
func (c *CredentialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.name, Timestamp: start}

	h, ok := c.current()
	if !ok {
		result.Status = StatusUnhealthy
		result.Error = "no credential installed"
		result.Duration = time.Since(start)
		return result
	}

	st := h.Status()
	result.Metadata = map[string]interface{}{
		"principal":  st.Principal,
		"expires_at": st.ExpiresAt,
		"renew_till": st.RenewTill,
		"renewals":   st.Renewals,
	}

	switch {
	case !st.Valid:
		result.Status = StatusUnhealthy
		result.Error = "credential expired"
	case st.LastError != "":
		result.Status = StatusDegraded
		result.Error = st.LastError
	default:
		result.Status = StatusHealthy
		result.Message = "OK"
	}
	result.Duration = time.Since(start)
	return result
}

// Name returns the name of the health check
func (c *CredentialChecker) Name() string {
	return c.name
}
