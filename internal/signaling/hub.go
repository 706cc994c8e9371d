package signaling

import (
	"errors"
	"sync"
)

var errTooManyConnections = errors.New("too many connections")

// hub indexes live sessions by connection ID and by room so broadcasts can
// resolve recipients without touching the registry. Delivery is a non-blocking
// enqueue; sessions that cannot keep up are reported back to the caller.
type hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	rooms    map[string]map[string]*session

	// maxConnections <= 0 means unlimited.
	maxConnections int
}

func newHub(maxConnections int) *hub {
	return &hub{
		sessions:       make(map[string]*session),
		rooms:          make(map[string]map[string]*session),
		maxConnections: maxConnections,
	}
}

func (h *hub) add(s *session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConnections > 0 && len(h.sessions) >= h.maxConnections {
		return errTooManyConnections
	}
	h.sessions[s.id] = s
	return nil
}

// remove drops the session from the hub and from any room index entry.
func (h *hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s.id)
	for room, members := range h.rooms {
		if _, ok := members[s.id]; ok {
			delete(members, s.id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

func (h *hub) joinRoom(room string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*session)
		h.rooms[room] = members
	}
	members[s.id] = s
}

func (h *hub) leaveRoom(room string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, s.id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *hub) connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// broadcast enqueues payload to every session in room, minus excludeID if
// non-empty. It returns the sessions whose outbound queue was full.
func (h *hub) broadcast(room string, payload []byte, excludeID string) []*session {
	h.mu.Lock()
	targets := make([]*session, 0, len(h.rooms[room]))
	for id, s := range h.rooms[room] {
		if id == excludeID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.Unlock()

	var slow []*session
	for _, s := range targets {
		if !s.enqueue(payload) {
			slow = append(slow, s)
		}
	}
	return slow
}

// send enqueues payload to a single session. False means the session's queue
// was full.
func (h *hub) send(s *session, payload []byte) bool {
	return s.enqueue(payload)
}
