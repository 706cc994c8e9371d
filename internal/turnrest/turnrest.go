// Package turnrest issues coturn-compatible ephemeral TURN credentials.
//
// See:
// - https://github.com/coturn/coturn/wiki/turnserver
// - https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest
//
// Algorithm:
//
//	username   = <unix_expiry_timestamp>:<username_prefix>:<connection_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// Expiry is computed using the server clock in UTC:
//
//	unix_expiry_timestamp = now_utc_unix + ttl_seconds
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Issuer struct {
	sharedSecret   []byte
	ttlSeconds     int64
	usernamePrefix string
	now            func() time.Time

	randomID func() (string, error)
}

type IssuerConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	// Now and RandomID default to time.Now and a crypto/rand hex string.
	Now      func() time.Time
	RandomID func() (string, error)
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandomID == nil {
		cfg.RandomID = cryptoRandomID
	}
	return &Issuer{
		sharedSecret:   []byte(cfg.SharedSecret),
		ttlSeconds:     cfg.TTLSeconds,
		usernamePrefix: cfg.UsernamePrefix,
		now:            cfg.Now,
		randomID:       cfg.RandomID,
	}, nil
}

// Credentials is one ephemeral TURN username/credential pair. The pair stops
// authenticating at ExpiryUnix; clients should re-request before then.
type Credentials struct {
	Username   string
	Credential string
	ExpiryUnix int64
}

// Issue mints credentials scoped to connID so coturn logs can be correlated
// back to a signaling connection.
func (i *Issuer) Issue(connID string) (Credentials, error) {
	if connID == "" {
		return Credentials{}, errors.New("connID is required")
	}
	if strings.Contains(connID, ":") {
		return Credentials{}, errors.New("connID must not contain ':'")
	}
	expiryUnix := i.now().UTC().Unix() + i.ttlSeconds
	username := fmt.Sprintf("%d:%s:%s", expiryUnix, i.usernamePrefix, connID)
	mac := hmac.New(sha1.New, i.sharedSecret)
	_, _ = mac.Write([]byte(username))
	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiryUnix: expiryUnix,
	}, nil
}

// IssueAnonymous mints credentials with a random ID, for callers that request
// ICE configuration before a signaling connection exists.
func (i *Issuer) IssueAnonymous() (Credentials, error) {
	id, err := i.randomID()
	if err != nil {
		return Credentials{}, err
	}
	return i.Issue(id)
}

func cryptoRandomID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
