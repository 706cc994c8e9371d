// Package signaling contains the real-time call surface: connection
// sessions, the event router, and the WebSocket endpoint browser clients
// speak to.
//
// The router mutates the room registry and fans events out to room members;
// the SDP/ICE payloads themselves are relayed opaquely after schema checks.
package signaling
