package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint summarizes request shape independent of the client address.
// Two requests with the same header tuple, method and path produce the same
// ID even when issued from different IPs, which is what makes it useful
// against distributed scraping.
type Fingerprint struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Method         string
	Path           string
}

// New builds a Fingerprint from raw request attributes. Missing headers are
// kept as empty strings and the query string is stripped from the path, so
// construction never fails.
func New(userAgent, acceptLanguage, acceptEncoding, method, path string) Fingerprint {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return Fingerprint{
		UserAgent:      userAgent,
		AcceptLanguage: acceptLanguage,
		AcceptEncoding: acceptEncoding,
		Method:         method,
		Path:           path,
	}
}

// ID returns a fixed-length opaque digest, stable for identical tuples.
func (f Fingerprint) ID() string {
	raw := f.UserAgent + "|" + f.AcceptLanguage + "|" + f.AcceptEncoding + "|" + f.Method + "|" + f.Path
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
