package fingerprint_test

import (
	"testing"

	"github.com/EdgeWard/WardGate/pkg/infra/fingerprint"
)

func TestFingerprintID_Deterministic(t *testing.T) {
	a := fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/portfolio")
	b := fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/portfolio")

	if a.ID() != b.ID() {
		t.Errorf("identical tuples produced different IDs: %q vs %q", a.ID(), b.ID())
	}
}

func TestFingerprintID_FixedLength(t *testing.T) {
	short := fingerprint.New("", "", "", "GET", "/")
	long := fingerprint.New("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", "en-US,en;q=0.9,de;q=0.5", "gzip, deflate, br", "POST", "/api/v1/some/deeply/nested/resource")

	if len(short.ID()) != 64 {
		t.Errorf("expected 64-char digest, got %d", len(short.ID()))
	}
	if len(short.ID()) != len(long.ID()) {
		t.Errorf("digest length varies with input: %d vs %d", len(short.ID()), len(long.ID()))
	}
}

func TestFingerprintID_DistinctTuples(t *testing.T) {
	base := fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/portfolio")
	variants := []fingerprint.Fingerprint{
		fingerprint.New("curl/8.0", "en-US", "gzip", "GET", "/api/portfolio"),
		fingerprint.New("Mozilla/5.0", "de-DE", "gzip", "GET", "/api/portfolio"),
		fingerprint.New("Mozilla/5.0", "en-US", "br", "GET", "/api/portfolio"),
		fingerprint.New("Mozilla/5.0", "en-US", "gzip", "POST", "/api/portfolio"),
		fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/reports"),
	}

	for i, v := range variants {
		if v.ID() == base.ID() {
			t.Errorf("variant %d collided with base fingerprint", i)
		}
	}
}

func TestFingerprintNew_MissingHeaders(t *testing.T) {
	fp := fingerprint.New("", "", "", "GET", "/health")

	if fp.ID() == "" {
		t.Error("missing headers must still produce a digest")
	}
}

func TestFingerprintNew_StripsQueryString(t *testing.T) {
	withQuery := fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/search?q=aapl&page=2")
	withoutQuery := fingerprint.New("Mozilla/5.0", "en-US", "gzip", "GET", "/api/search")

	if withQuery.ID() != withoutQuery.ID() {
		t.Error("query string must not influence the fingerprint")
	}
	if withQuery.Path != "/api/search" {
		t.Errorf("expected stripped path, got %q", withQuery.Path)
	}
}
