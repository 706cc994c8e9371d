package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 1 * time.Second

	// outQueueLen bounds per-connection outbound backlog. A client that
	// cannot drain this many events is disconnected rather than allowed to
	// stall room broadcasts.
	outQueueLen = 64
)

// session is one connected signaling client. The read loop runs in the
// connection's handler goroutine; writePump is the only goroutine writing to
// conn.
type session struct {
	id       string
	identity string
	conn     *websocket.Conn

	out chan []byte

	mu   sync.Mutex
	room string

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(identity string, conn *websocket.Conn) *session {
	return &session{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		out:      make(chan []byte, outQueueLen),
		done:     make(chan struct{}),
	}
}

func (s *session) currentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *session) setRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
}

// enqueue queues payload for delivery. It never blocks; false means the
// client is too slow and should be dropped.
func (s *session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.out <- payload:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

// close makes writePump exit, which closes the underlying connection and in
// turn unblocks the read loop.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// writePump drains the outbound queue and keeps the connection alive with
// periodic pings. It owns conn writes and closes conn on exit.
func (s *session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is already queued before closing.
			for {
				select {
				case payload := <-s.out:
					_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
