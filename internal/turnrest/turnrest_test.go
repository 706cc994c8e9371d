package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerConfig{
		SharedSecret:   "north",
		TTLSeconds:     600,
		UsernamePrefix: "callwave",
		Now:            fixedNow,
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return issuer
}

func TestIssueMatchesCoturnAlgorithm(t *testing.T) {
	issuer := newTestIssuer(t)

	creds, err := issuer.Issue("conn-abc")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	wantExpiry := fixedNow().Unix() + 600
	if creds.ExpiryUnix != wantExpiry {
		t.Fatalf("ExpiryUnix=%d, want %d", creds.ExpiryUnix, wantExpiry)
	}
	wantUsername := fmt.Sprintf("%d:callwave:conn-abc", wantExpiry)
	if creds.Username != wantUsername {
		t.Fatalf("Username=%q, want %q", creds.Username, wantUsername)
	}

	mac := hmac.New(sha1.New, []byte("north"))
	mac.Write([]byte(wantUsername))
	wantCredential := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if creds.Credential != wantCredential {
		t.Fatalf("Credential=%q, want %q", creds.Credential, wantCredential)
	}
}

func TestIssueRejectsBadConnIDs(t *testing.T) {
	issuer := newTestIssuer(t)

	if _, err := issuer.Issue(""); err == nil {
		t.Fatalf("expected error for empty connID")
	}
	if _, err := issuer.Issue("a:b"); err == nil {
		t.Fatalf("expected error for connID containing ':'")
	}
}

func TestIssueAnonymousUsesRandomID(t *testing.T) {
	issuer, err := NewIssuer(IssuerConfig{
		SharedSecret:   "north",
		TTLSeconds:     600,
		UsernamePrefix: "callwave",
		Now:            fixedNow,
		RandomID:       func() (string, error) { return "deadbeef", nil },
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	creds, err := issuer.IssueAnonymous()
	if err != nil {
		t.Fatalf("IssueAnonymous: %v", err)
	}
	if !strings.HasSuffix(creds.Username, ":callwave:deadbeef") {
		t.Fatalf("Username=%q, want suffix :callwave:deadbeef", creds.Username)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  IssuerConfig
	}{
		{name: "missing secret", cfg: IssuerConfig{TTLSeconds: 600, UsernamePrefix: "p"}},
		{name: "zero ttl", cfg: IssuerConfig{SharedSecret: "s", UsernamePrefix: "p"}},
		{name: "negative ttl", cfg: IssuerConfig{SharedSecret: "s", TTLSeconds: -1, UsernamePrefix: "p"}},
		{name: "missing prefix", cfg: IssuerConfig{SharedSecret: "s", TTLSeconds: 600}},
		{name: "prefix with colon", cfg: IssuerConfig{SharedSecret: "s", TTLSeconds: 600, UsernamePrefix: "a:b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewIssuer(tt.cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
