package signaling

import (
	"log/slog"
	"sync"

	"github.com/callwave/signaling-relay/internal/metrics"
	"github.com/callwave/signaling-relay/internal/registry"
)

// router dispatches parsed client events: it validates preconditions against
// the session's current room, mutates the registry, and fans the resulting
// events out via the hub.
//
// Membership and chat mutations for a room happen under that room's lock,
// held until the corresponding broadcasts are enqueued. Enqueues are
// in-memory and non-blocking, so the lock never waits on the network; it
// guarantees that every member observes broadcasts in the order the registry
// committed the mutations. Rooms lock independently, so one busy room does
// not stall the others.
type router struct {
	reg     *registry.Registry
	hub     *hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	// requireJoinedRoom rejects chat and WebRTC events naming a room the
	// sender has not joined. Off, they are relayed best-effort to whoever is
	// indexed under that room name, matching the legacy relay.
	requireJoinedRoom bool

	lockMu    sync.Mutex
	roomLocks map[string]*roomLock
}

// roomLock is a refcounted keyed mutex. The map entry lives exactly as long
// as some handler holds or awaits it, so two handlers for the same room code
// can never end up on distinct mutexes.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRouter(reg *registry.Registry, h *hub, m *metrics.Metrics, logger *slog.Logger, requireJoinedRoom bool) *router {
	return &router{
		reg:               reg,
		hub:               h,
		metrics:           m,
		logger:            logger,
		requireJoinedRoom: requireJoinedRoom,
		roomLocks:         make(map[string]*roomLock),
	}
}

func (rt *router) lockRoom(room string) *roomLock {
	rt.lockMu.Lock()
	l := rt.roomLocks[room]
	if l == nil {
		l = &roomLock{}
		rt.roomLocks[room] = l
	}
	l.refs++
	rt.lockMu.Unlock()

	l.mu.Lock()
	return l
}

func (rt *router) unlockRoom(room string, l *roomLock) {
	l.mu.Unlock()

	rt.lockMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(rt.roomLocks, room)
	}
	rt.lockMu.Unlock()
}

func (rt *router) handleEvent(s *session, ev clientEvent) {
	switch ev.Type {
	case eventJoinRoom:
		rt.handleJoin(s, ev)
	case eventLeaveRoom:
		rt.handleLeave(s, ev)
	case eventSendMessage:
		rt.handleChat(s, ev)
	case eventWebRTCOffer, eventWebRTCAnswer, eventICECandidate:
		rt.handleRelay(s, ev)
	}
}

func (rt *router) handleJoin(s *session, ev clientEvent) {
	if current := s.currentRoom(); current != "" && current != ev.Room {
		rt.metrics.Inc(metrics.DropReasonRoomMismatch)
		rt.sendError(s, errCodeRoomMismatch, "already in a room; leave it first")
		return
	}

	lock := rt.lockRoom(ev.Room)
	snap, created := rt.reg.Join(ev.Room, s.identity)
	rt.hub.joinRoom(ev.Room, s)
	s.setRoom(ev.Room)

	joined := marshalEvent(userJoinedEvent{
		Type:     "user_joined",
		Username: s.identity,
		Users:    snap.Members,
	})
	slow := rt.hub.broadcast(ev.Room, joined, "")
	history := marshalEvent(messageHistoryEvent{Type: "message_history", Messages: snap.History})
	historyOK := rt.hub.send(s, history)
	rt.unlockRoom(ev.Room, lock)

	rt.metrics.Inc(metrics.RoomJoin)
	if created {
		rt.metrics.Inc(metrics.RoomCreated)
	}
	rt.logger.Debug("room join", "room", ev.Room, "username", s.identity, "members", len(snap.Members))

	rt.closeSlow(slow)
	if !historyOK {
		rt.closeSlow([]*session{s})
	}
}

func (rt *router) handleLeave(s *session, ev clientEvent) {
	if s.currentRoom() != ev.Room {
		rt.metrics.Inc(metrics.DropReasonRoomMismatch)
		rt.sendError(s, errCodeRoomMismatch, "not in that room")
		return
	}

	lock := rt.lockRoom(ev.Room)
	members, ok := rt.reg.Leave(ev.Room, s.identity)
	rt.hub.leaveRoom(ev.Room, s)
	s.setRoom("")

	var slow []*session
	if ok {
		left := marshalEvent(userLeftEvent{Type: "user_left", Username: s.identity, Users: members})
		slow = rt.hub.broadcast(ev.Room, left, "")
	}
	rt.unlockRoom(ev.Room, lock)

	rt.metrics.Inc(metrics.RoomLeave)
	rt.logger.Debug("room leave", "room", ev.Room, "username", s.identity, "members", len(members))

	rt.closeSlow(slow)
}

func (rt *router) handleChat(s *session, ev clientEvent) {
	if rt.requireJoinedRoom && s.currentRoom() != ev.Room {
		rt.metrics.Inc(metrics.DropReasonRoomMismatch)
		rt.sendError(s, errCodeRoomMismatch, "not in that room")
		return
	}

	msg := registry.ChatMessage{
		Username:  s.identity,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}

	lock := rt.lockRoom(ev.Room)
	appended := rt.reg.Append(ev.Room, msg)
	// The broadcast still runs when the room is unknown: the hub has no
	// members indexed under it, so this is a no-op, mirroring best-effort
	// relay semantics.
	payload := marshalEvent(receiveMessageEvent{
		Type:      "receive_message",
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: msg.Timestamp,
	})
	slow := rt.hub.broadcast(ev.Room, payload, "")
	rt.unlockRoom(ev.Room, lock)

	if appended {
		rt.metrics.Inc(metrics.ChatMessage)
	} else {
		rt.metrics.Inc(metrics.DropReasonUnknownRoom)
	}

	rt.closeSlow(slow)
}

// handleRelay forwards offer/answer/candidate payloads to the other room
// members. The registry is not touched, so no room lock is taken.
func (rt *router) handleRelay(s *session, ev clientEvent) {
	if rt.requireJoinedRoom && s.currentRoom() != ev.Room {
		rt.metrics.Inc(metrics.DropReasonRoomMismatch)
		rt.sendError(s, errCodeRoomMismatch, "not in that room")
		return
	}

	var payload []byte
	switch ev.Type {
	case eventWebRTCOffer:
		payload = marshalEvent(offerRelayEvent{Type: string(eventWebRTCOffer), Offer: *ev.Offer, Username: s.identity})
	case eventWebRTCAnswer:
		payload = marshalEvent(answerRelayEvent{Type: string(eventWebRTCAnswer), Answer: *ev.Answer, Username: s.identity})
	case eventICECandidate:
		payload = marshalEvent(candidateRelayEvent{Type: string(eventICECandidate), Candidate: *ev.Candidate, Username: s.identity})
	}

	slow := rt.hub.broadcast(ev.Room, payload, s.id)
	rt.metrics.Inc(metrics.WebRTCRelay)
	rt.closeSlow(slow)
}

// handleDisconnect synthesizes a leave for the session's current room, if
// any, so membership never goes stale after a transport drop.
func (rt *router) handleDisconnect(s *session) {
	if room := s.currentRoom(); room != "" {
		lock := rt.lockRoom(room)
		members, ok := rt.reg.Leave(room, s.identity)
		rt.hub.leaveRoom(room, s)
		s.setRoom("")

		var slow []*session
		if ok {
			left := marshalEvent(userLeftEvent{Type: "user_left", Username: s.identity, Users: members})
			slow = rt.hub.broadcast(room, left, "")
		}
		rt.unlockRoom(room, lock)

		rt.metrics.Inc(metrics.RoomLeave)
		rt.logger.Debug("room leave on disconnect", "room", room, "username", s.identity)
		rt.closeSlow(slow)
	}

	rt.hub.remove(s)
	s.close()
}

func (rt *router) sendError(s *session, code, message string) {
	payload := marshalEvent(errorEvent{Type: "error", Code: code, Message: message})
	if !rt.hub.send(s, payload) {
		rt.closeSlow([]*session{s})
	}
}

func (rt *router) closeSlow(slow []*session) {
	for _, s := range slow {
		rt.metrics.Inc(metrics.DropReasonSlowConsumer)
		rt.logger.Warn("dropping slow signaling consumer", "username", s.identity, "room", s.currentRoom())
		s.close()
	}
}
