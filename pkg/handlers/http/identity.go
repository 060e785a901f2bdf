package http

import (
	"errors"
	"net"
	"strings"
)

var errInvalidIdentity = errors.New("identity must be a valid IP address")

// parseIdentity normalizes and validates an identity supplied by an
// operator. Identities key all per-client guard state, so a malformed one is
// rejected here instead of polluting the store.
func parseIdentity(raw string) (string, error) {
	identity := strings.TrimSpace(raw)
	if identity == "" {
		return "", errors.New("identity is required")
	}
	if net.ParseIP(identity) == nil {
		return "", errInvalidIdentity
	}
	return identity, nil
}
