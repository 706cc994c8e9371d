// Package registry is the in-memory room state: who is in each room and the
// chat history accumulated so far. It is the single source of truth the
// signaling router consults and mutates.
package registry

import (
	"sync"
	"time"
)

// ChatMessage is one chat entry as stored and as rebroadcast. Timestamp is
// client-supplied and not validated; history order is arrival order, not
// timestamp order.
type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot is a point-in-time copy of a room's state. The slices are owned by
// the caller; mutating them does not affect the registry.
type Snapshot struct {
	Members []string
	History []ChatMessage
}

type room struct {
	mu sync.Mutex

	// members is insertion-ordered: the order clients joined in.
	members []string
	history []ChatMessage

	// emptySince is set when the last member leaves and cleared on join.
	// Zero while the room is occupied.
	emptySince time.Time

	// evicted marks a room Sweep has removed from the map. Callers that
	// fetched the pointer before the eviction must treat the room as gone
	// instead of mutating the orphaned object.
	evicted bool
}

// Registry tracks rooms by code. Rooms are created on demand and retained
// when they empty out, so participants can rejoin with the same code; an
// optional sweep evicts rooms that have stayed empty past a TTL.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	now func() time.Time
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

// getOrCreate returns the room for code, creating it if needed.
// created reports whether this call created it.
func (r *Registry) getOrCreate(code string) (rm *room, created bool) {
	r.mu.RLock()
	rm = r.rooms[code]
	r.mu.RUnlock()
	if rm != nil {
		return rm, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm = r.rooms[code]; rm != nil {
		return rm, false
	}
	rm = &room{}
	r.rooms[code] = rm
	return rm, true
}

func (r *Registry) get(code string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[code]
}

// CreateRoom registers an empty room under code. It reports false if the code
// is already taken.
func (r *Registry) CreateRoom(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[code]; exists {
		return false
	}
	r.rooms[code] = &room{emptySince: r.now()}
	return true
}

// Join adds username to the room, creating the room if it does not exist yet.
// Joining a room the user is already in is a no-op. The returned snapshot
// reflects the state after the join.
func (r *Registry) Join(code, username string) (Snapshot, bool) {
	for {
		rm, created := r.getOrCreate(code)

		rm.mu.Lock()
		if rm.evicted {
			// Sweep removed the room between the map lookup and the room
			// lock. Retry; the next lookup creates a fresh room.
			rm.mu.Unlock()
			continue
		}
		if !containsMember(rm.members, username) {
			rm.members = append(rm.members, username)
		}
		rm.emptySince = time.Time{}
		snap := snapshotLocked(rm)
		rm.mu.Unlock()
		return snap, created
	}
}

// Leave removes username from the room. It reports false when the room does
// not exist; leaving a room the user is not in is a no-op that still reports
// true. The returned members are the remaining occupants.
func (r *Registry) Leave(code, username string) ([]string, bool) {
	rm := r.get(code)
	if rm == nil {
		return nil, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.evicted {
		return nil, false
	}
	for i, m := range rm.members {
		if m == username {
			rm.members = append(rm.members[:i], rm.members[i+1:]...)
			break
		}
	}
	if len(rm.members) == 0 {
		rm.emptySince = r.now()
	}
	return copyMembers(rm.members), true
}

// Append stores msg in the room's history. It reports false when the room
// does not exist; the message is dropped in that case.
func (r *Registry) Append(code string, msg ChatMessage) bool {
	rm := r.get(code)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.evicted {
		return false
	}
	rm.history = append(rm.history, msg)
	return true
}

// Snapshot returns a copy of the room's members and history. It reports false
// when the room does not exist.
func (r *Registry) Snapshot(code string) (Snapshot, bool) {
	rm := r.get(code)
	if rm == nil {
		return Snapshot{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.evicted {
		return Snapshot{}, false
	}
	return snapshotLocked(rm), true
}

// Has reports whether username is currently a member of the room.
func (r *Registry) Has(code, username string) bool {
	rm := r.get(code)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.evicted {
		return false
	}
	return containsMember(rm.members, username)
}

// Exists reports whether the room code is registered.
func (r *Registry) Exists(code string) bool {
	return r.get(code) != nil
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sweep evicts rooms that have been empty for longer than ttl and returns the
// evicted codes. A ttl of zero or less evicts nothing.
func (r *Registry) Sweep(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for code, rm := range r.rooms {
		rm.mu.Lock()
		stale := len(rm.members) == 0 && !rm.emptySince.IsZero() && rm.emptySince.Before(cutoff)
		if stale {
			rm.evicted = true
		}
		rm.mu.Unlock()
		if stale {
			delete(r.rooms, code)
			evicted = append(evicted, code)
		}
	}
	return evicted
}

// snapshotLocked copies room state; rm.mu must be held.
func snapshotLocked(rm *room) Snapshot {
	// History must marshal as [] rather than null when empty, so keep the
	// slice non-nil.
	history := make([]ChatMessage, len(rm.history))
	copy(history, rm.history)
	return Snapshot{
		Members: copyMembers(rm.members),
		History: history,
	}
}

func copyMembers(members []string) []string {
	out := make([]string, len(members))
	copy(out, members)
	return out
}

func containsMember(members []string, username string) bool {
	for _, m := range members {
		if m == username {
			return true
		}
	}
	return false
}
