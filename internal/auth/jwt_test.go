package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret, headerJSON, payloadJSON string) string {
	t.Helper()
	headerB64 := base64.RawURLEncoding.EncodeToString([]byte(headerJSON))
	payloadB64 := base64.RawURLEncoding.EncodeToString([]byte(payloadJSON))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(headerB64 + "." + payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return headerB64 + "." + payloadB64 + "." + sigB64
}

func mintToken(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return signHS256(t, secret, `{"alg":"HS256","typ":"JWT"}`, string(payloadJSON))
}

func verifierAt(secret string, now time.Time) jwtVerifier {
	v := newJWTVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestVerifyAndExtractName(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := verifierAt(testSecret, now)

	token := mintToken(t, testSecret, map[string]any{
		"name": "alice",
		"exp":  now.Unix() + 60,
		"iat":  now.Unix() - 60,
	})

	name, err := v.VerifyAndExtractName(token)
	if err != nil {
		t.Fatalf("VerifyAndExtractName: %v", err)
	}
	if name != "alice" {
		t.Fatalf("name=%q, want alice", name)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	valid := map[string]any{
		"name": "alice",
		"exp":  now.Unix() + 60,
		"iat":  now.Unix() - 60,
	}

	withClaims := func(mutate func(map[string]any)) string {
		claims := map[string]any{}
		for k, v := range valid {
			claims[k] = v
		}
		mutate(claims)
		return mintToken(t, testSecret, claims)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not a jwt", token: "abc"},
		{name: "two parts", token: "aGVhZGVy.cGF5bG9hZA"},
		{name: "four parts", token: mintToken(t, testSecret, valid) + ".extra"},
		{name: "wrong secret", token: mintToken(t, "other-secret", valid)},
		{name: "expired", token: withClaims(func(c map[string]any) { c["exp"] = now.Unix() - 1 })},
		{name: "exp equals now", token: withClaims(func(c map[string]any) { c["exp"] = now.Unix() })},
		{name: "missing exp", token: withClaims(func(c map[string]any) { delete(c, "exp") })},
		{name: "missing iat", token: withClaims(func(c map[string]any) { delete(c, "iat") })},
		{name: "nbf in future", token: withClaims(func(c map[string]any) { c["nbf"] = now.Unix() + 30 })},
		{name: "missing name", token: withClaims(func(c map[string]any) { delete(c, "name") })},
		{name: "empty name", token: withClaims(func(c map[string]any) { c["name"] = "  " })},
		{name: "numeric name", token: withClaims(func(c map[string]any) { c["name"] = 42 })},
		{name: "exp as string", token: withClaims(func(c map[string]any) { c["exp"] = "soon" })},
		{
			name:  "padded base64 signature",
			token: mintToken(t, testSecret, valid) + "=",
		},
		{
			name:  "payload not an object",
			token: signHS256(t, testSecret, `{"alg":"HS256"}`, `"just a string"`),
		},
		{
			name:  "trailing payload bytes",
			token: signHS256(t, testSecret, `{"alg":"HS256"}`, `{"name":"alice","exp":9999999999,"iat":1}{}`),
		},
	}

	v := verifierAt(testSecret, now)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifyAndExtractName(tt.token); err == nil {
				t.Fatalf("expected error for token %q", tt.token)
			}
		})
	}
}

func TestVerifyRejectsNonHS256Alg(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := verifierAt(testSecret, now)

	// "alg":"none" with an otherwise well-formed signature segment.
	token := signHS256(t, testSecret, `{"alg":"none"}`, `{"name":"alice","exp":9999999999,"iat":1}`)
	_, err := v.VerifyAndExtractName(token)
	if !errors.Is(err, ErrUnsupportedJWT) {
		t.Fatalf("err=%v, want ErrUnsupportedJWT", err)
	}
}

func TestVerifyAcceptsNbfInPast(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := verifierAt(testSecret, now)

	token := mintToken(t, testSecret, map[string]any{
		"name": "bob",
		"exp":  now.Unix() + 60,
		"iat":  now.Unix() - 60,
		"nbf":  now.Unix() - 30,
	})
	name, err := v.VerifyAndExtractName(token)
	if err != nil {
		t.Fatalf("VerifyAndExtractName: %v", err)
	}
	if name != "bob" {
		t.Fatalf("name=%q, want bob", name)
	}
}

func TestIsBase64urlNoPadCanonical(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", false},
		{"A", false},      // len%4 == 1
		{"AA", true},      // low 4 bits of 'A' (0) are zero
		{"AB", false},     // 'B' = 1, non-zero unused bits
		{"AAA", true},     // low 2 bits zero
		{"AAB", false},    // 'B' = 1, non-zero unused bits
		{"AAAA", true},    // full quantum
		{"AAA=", false},   // padding not allowed
		{"AAA+", false},   // standard base64 alphabet not allowed
		{"AA-_", true},    // url-safe alphabet
		{"AA.A", false},   // separator not in alphabet
	}
	for _, tt := range tests {
		if got := isBase64urlNoPad(tt.raw, 64); got != tt.want {
			t.Errorf("isBase64urlNoPad(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
