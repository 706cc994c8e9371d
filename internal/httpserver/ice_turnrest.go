package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
)

// serveICEConfig returns the ICE server list call clients should hand to
// their RTCPeerConnection. When TURN REST is enabled, TURN entries carry
// freshly minted ephemeral credentials instead of whatever static values were
// configured.
func (s *Server) serveICEConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ICEConfigError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}

	servers := s.cfg.ICEServers
	resp := map[string]any{}
	if s.turnIssuer != nil {
		creds, err := s.turnIssuer.IssueAnonymous()
		if err != nil {
			s.log.Error("turn rest credential issue failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "could not issue TURN credentials"})
			return
		}
		servers = withTURNRESTCredentials(servers, creds.Username, creds.Credential)
		resp["expiresAt"] = creds.ExpiryUnix
	}
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	resp["iceServers"] = servers
	WriteJSON(w, http.StatusOK, resp)
}

func withTURNRESTCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		// Preserve empty (non-nil) slices so JSON responses consistently
		// encode as `[]` rather than `null`.
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if strings.HasPrefix(strings.ToLower(url), "turn:") || strings.HasPrefix(strings.ToLower(url), "turns:") {
			return true
		}
	}
	return false
}
