package credential

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication classifies login failures: missing, malformed or rejected
	// credential source material. Fatal at startup.
	ErrAuthentication = errors.New("credential authentication error")
	// ErrRenewal classifies a single failed re-login attempt. A later attempt may
	// still succeed before the grace lifetime ends.
	ErrRenewal = errors.New("credential renewal error")
	// ErrExpired is returned once the grace lifetime has elapsed.
	ErrExpired = errors.New("credential expired")
	// ErrAlreadyInstalled is returned when another handle owns the process identity.
	ErrAlreadyInstalled = errors.New("credential handle already installed")
)

func credentialError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
