package metrics

import "sync"

// Counter names used across the signaling core.
const (
	RoomJoin    = "room_join"
	RoomLeave   = "room_leave"
	RoomCreated = "room_created"
	RoomEvicted = "room_evicted"
	ChatMessage = "chat_message"
	WebRTCRelay = "webrtc_relay"

	// Drop reasons.
	DropReasonUnauthenticated    = "unauthenticated"
	DropReasonRoomMismatch       = "room_mismatch"
	DropReasonUnknownRoom        = "unknown_room"
	DropReasonBadMessage         = "bad_message"
	DropReasonRateLimited        = "rate_limited"
	DropReasonTooManyConnections = "too_many_connections"
	DropReasonSlowConsumer       = "slow_consumer"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// It exists so the signaling core stays testable without a metrics backend;
// the HTTP layer exposes the counters via the Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
