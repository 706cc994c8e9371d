package registry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestJoinCreatesRoomAndOrdersMembers(t *testing.T) {
	r := New()

	snap, created := r.Join("room1", "alice")
	if !created {
		t.Fatalf("first join should create the room")
	}
	if len(snap.Members) != 1 || snap.Members[0] != "alice" {
		t.Fatalf("members=%v, want [alice]", snap.Members)
	}

	snap, created = r.Join("room1", "bob")
	if created {
		t.Fatalf("second join must not re-create the room")
	}
	if len(snap.Members) != 2 || snap.Members[0] != "alice" || snap.Members[1] != "bob" {
		t.Fatalf("members=%v, want join order [alice bob]", snap.Members)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := New()
	r.Join("room1", "alice")
	snap, _ := r.Join("room1", "alice")
	if len(snap.Members) != 1 {
		t.Fatalf("members=%v, want single alice entry", snap.Members)
	}
}

func TestLeaveRetainsEmptyRoomAndHistory(t *testing.T) {
	r := New()
	r.Join("room1", "alice")
	r.Append("room1", ChatMessage{Username: "alice", Message: "hi", Timestamp: 1})

	members, ok := r.Leave("room1", "alice")
	if !ok {
		t.Fatalf("Leave reported unknown room")
	}
	if len(members) != 0 {
		t.Fatalf("members=%v, want empty", members)
	}
	if !r.Exists("room1") {
		t.Fatalf("room must be retained after the last member leaves")
	}

	snap, ok := r.Snapshot("room1")
	if !ok {
		t.Fatalf("Snapshot reported unknown room")
	}
	if len(snap.History) != 1 || snap.History[0].Message != "hi" {
		t.Fatalf("history=%v, want the pre-leave message", snap.History)
	}
}

func TestLeaveUnknownRoomAndNonMember(t *testing.T) {
	r := New()
	if _, ok := r.Leave("nope", "alice"); ok {
		t.Fatalf("Leave of unknown room must report false")
	}

	r.Join("room1", "alice")
	members, ok := r.Leave("room1", "bob")
	if !ok {
		t.Fatalf("Leave by a non-member should still succeed")
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("members=%v, want [alice]", members)
	}
}

func TestAppendToUnknownRoomIsDropped(t *testing.T) {
	r := New()
	if r.Append("nope", ChatMessage{Username: "alice", Message: "hi"}) {
		t.Fatalf("Append to unknown room must report false")
	}
}

func TestHistoryIsArrivalOrdered(t *testing.T) {
	r := New()
	r.Join("room1", "alice")
	r.Append("room1", ChatMessage{Username: "alice", Message: "first", Timestamp: 100})
	r.Append("room1", ChatMessage{Username: "alice", Message: "second", Timestamp: 50})

	snap, _ := r.Snapshot("room1")
	if snap.History[0].Message != "first" || snap.History[1].Message != "second" {
		t.Fatalf("history=%v, want arrival order regardless of timestamps", snap.History)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Join("room1", "alice")
	r.Append("room1", ChatMessage{Username: "alice", Message: "hi"})

	snap, _ := r.Snapshot("room1")
	snap.Members[0] = "mallory"
	snap.History[0].Message = "tampered"

	again, _ := r.Snapshot("room1")
	if again.Members[0] != "alice" || again.History[0].Message != "hi" {
		t.Fatalf("snapshot mutation leaked into the registry: %v", again)
	}
}

func TestEmptyHistoryMarshalsAsArray(t *testing.T) {
	r := New()
	snap, _ := r.Join("room1", "alice")

	b, err := json.Marshal(snap.History)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[]" {
		t.Fatalf("empty history marshals as %s, want []", b)
	}
}

func TestHasAndExists(t *testing.T) {
	r := New()
	if r.Has("room1", "alice") || r.Exists("room1") {
		t.Fatalf("unknown room must report no members")
	}
	r.Join("room1", "alice")
	if !r.Has("room1", "alice") {
		t.Fatalf("alice should be a member")
	}
	if r.Has("room1", "bob") {
		t.Fatalf("bob should not be a member")
	}
}

func TestCreateRoomAndCodes(t *testing.T) {
	r := New()
	if !r.CreateRoom("abcd1234") {
		t.Fatalf("CreateRoom failed for fresh code")
	}
	if r.CreateRoom("abcd1234") {
		t.Fatalf("CreateRoom must report false for a taken code")
	}

	code, err := r.NewRoomCode()
	if err != nil {
		t.Fatalf("NewRoomCode: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("code=%q, want 8 characters", code)
	}
	if !r.Exists(code) {
		t.Fatalf("NewRoomCode must register the room")
	}
}

func TestSweepEvictsOnlyStaleEmptyRooms(t *testing.T) {
	r := New()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.Join("occupied", "alice")

	r.Join("emptied", "bob")
	r.Leave("emptied", "bob")

	// Room becomes stale only after the TTL elapses.
	if evicted := r.Sweep(time.Hour); len(evicted) != 0 {
		t.Fatalf("evicted=%v, want none before TTL", evicted)
	}

	now = now.Add(2 * time.Hour)
	evicted := r.Sweep(time.Hour)
	if len(evicted) != 1 || evicted[0] != "emptied" {
		t.Fatalf("evicted=%v, want [emptied]", evicted)
	}
	if !r.Exists("occupied") {
		t.Fatalf("occupied room must survive the sweep")
	}
	if r.Exists("emptied") {
		t.Fatalf("emptied room must be evicted")
	}

	// Zero TTL disables eviction entirely.
	r.Join("emptied2", "bob")
	r.Leave("emptied2", "bob")
	now = now.Add(100 * time.Hour)
	if evicted := r.Sweep(0); len(evicted) != 0 {
		t.Fatalf("evicted=%v, want none with ttl=0", evicted)
	}
}

func TestRejoinClearsEmptySince(t *testing.T) {
	r := New()
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.Join("room1", "alice")
	r.Leave("room1", "alice")
	now = now.Add(2 * time.Hour)
	r.Join("room1", "alice")

	if evicted := r.Sweep(time.Hour); len(evicted) != 0 {
		t.Fatalf("evicted=%v, rejoined room must not be swept", evicted)
	}
}

func TestJoinRacingSweepIsNotLost(t *testing.T) {
	for i := 0; i < 2000; i++ {
		r := New()
		now := time.Unix(1_700_000_000, 0)
		r.now = func() time.Time { return now }

		// A room that is already stale when the sweep and the join race.
		r.Join("room1", "alice")
		r.Leave("room1", "alice")
		now = now.Add(2 * time.Hour)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Sweep(time.Hour)
		}()
		go func() {
			defer wg.Done()
			snap, _ := r.Join("room1", "bob")
			if !containsMember(snap.Members, "bob") {
				t.Errorf("iteration %d: join snapshot %v missing bob", i, snap.Members)
			}
		}()
		wg.Wait()

		if !r.Has("room1", "bob") {
			t.Fatalf("iteration %d: Join succeeded but the sweep dropped the member", i)
		}
	}
}

func TestConcurrentJoins(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := string(rune('a' + n%26))
			r.Join("room1", user)
			r.Append("room1", ChatMessage{Username: user, Message: "hi"})
			r.Snapshot("room1")
		}(i)
	}
	wg.Wait()

	snap, ok := r.Snapshot("room1")
	if !ok {
		t.Fatalf("room missing after concurrent joins")
	}
	if len(snap.Members) == 0 || len(snap.History) != 32 {
		t.Fatalf("members=%d history=%d, want all appends recorded", len(snap.Members), len(snap.History))
	}
}
