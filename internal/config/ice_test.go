package config

import (
	"strings"
	"testing"
)

func TestParseICEServersJSON(t *testing.T) {
	raw := `[
		{"urls": "stun:stun.example.com:3478"},
		{"urls": ["turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"], "username": "u", "credential": "p"}
	]`
	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("ParseICEServersJSON: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("servers[0].URLs=%v", servers[0].URLs)
	}
	if servers[1].Username != "u" {
		t.Fatalf("servers[1].Username=%q, want %q", servers[1].Username, "u")
	}
	if cred, _ := servers[1].Credential.(string); cred != "p" {
		t.Fatalf("servers[1].Credential=%v, want %q", servers[1].Credential, "p")
	}
}

func TestParseICEServersJSONRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "not json", raw: "stun:stun.example.com", wantErr: "invalid character"},
		{name: "missing urls", raw: `[{"username": "u"}]`, wantErr: "missing urls"},
		{name: "bad scheme", raw: `[{"urls": "http://example.com"}]`, wantErr: "unsupported url scheme"},
		{name: "turn without username", raw: `[{"urls": "turn:turn.example.com", "credential": "p"}]`, wantErr: "turn urls require username"},
		{name: "turn without credential", raw: `[{"urls": "turn:turn.example.com", "username": "u"}]`, wantErr: "turn urls require credential"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseICEServersJSON(tt.raw)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConvenienceEnvStunAndTurn(t *testing.T) {
	servers, err := parseICEServersFromConvenienceEnv(
		"stun:stun1.example.com, stun:stun2.example.com",
		"turn:turn.example.com:3478",
		"user", "pass",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Fatalf("stun URLs=%v, want 2 entries", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("turn username=%q", servers[1].Username)
	}
}

func TestConvenienceEnvTurnWithoutCredentials(t *testing.T) {
	// Allowed: TURN REST injects ephemeral credentials per request.
	servers, err := parseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("got %d servers, want 1", len(servers))
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("expected no static credentials, got %+v", servers[0])
	}
}

func TestConvenienceEnvTurnWithUsernameOnlyRejected(t *testing.T) {
	if _, err := parseICEServersFromConvenienceEnv("", "turn:turn.example.com", "user", ""); err == nil {
		t.Fatalf("expected error for username without credential")
	}
}

func TestConvenienceEnvRejectsBadScheme(t *testing.T) {
	if _, err := parseICEServersFromConvenienceEnv("https://stun.example.com", "", "", ""); err == nil {
		t.Fatalf("expected error for non-STUN scheme")
	}
	if _, err := parseICEServersFromConvenienceEnv("", "ws://turn.example.com", "", ""); err == nil {
		t.Fatalf("expected error for non-TURN scheme")
	}
}

func TestJSONTakesPrecedenceOverConvenienceEnv(t *testing.T) {
	servers, err := parseICEServersFromValues(
		`[{"urls": "stun:json.example.com"}]`,
		"stun:env.example.com", "", "", "",
	)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("servers=%v, want JSON config to win", servers)
	}
}
