package krb5

import (
	"fmt"
	"strings"
)

// splitPrincipal splits "user@REALM" into its parts. A principal without a
// realm falls back to defaultRealm.
func splitPrincipal(principal, defaultRealm string) (user, realm string, err error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", "", fmt.Errorf("principal is empty")
	}
	user, realm = principal, ""
	if i := strings.LastIndex(principal, "@"); i >= 0 {
		user, realm = principal[:i], principal[i+1:]
	}
	if user == "" {
		return "", "", fmt.Errorf("principal %q has no user part", principal)
	}
	if realm == "" {
		realm = defaultRealm
	}
	if realm == "" {
		return "", "", fmt.Errorf("principal %q has no realm and no default realm is configured", principal)
	}
	return user, realm, nil
}
