package coordinator

import (
	"fmt"
	"sync"
	"testing"
)

type countEvent struct {
	sessionID string
	count     int
}

func newRecordingPresence() (*Presence, *[]countEvent, *sync.Mutex) {
	var mu sync.Mutex
	events := &[]countEvent{}
	p := NewPresence(func(sessionID string, count int) {
		// The tracker holds its lock while notifying, so appends here are
		// already serialized; the mutex guards the test's own reads.
		mu.Lock()
		*events = append(*events, countEvent{sessionID, count})
		mu.Unlock()
	})
	return p, events, &mu
}

func TestJoinIsIdempotent(t *testing.T) {
	p, events, _ := newRecordingPresence()

	if got := p.Join("s1", "c1"); got != 1 {
		t.Fatalf("first join count = %d, want 1", got)
	}
	if got := p.Join("s1", "c1"); got != 1 {
		t.Fatalf("repeated join count = %d, want 1", got)
	}
	if got := p.CountOf("s1"); got != 1 {
		t.Errorf("countOf = %d, want 1", got)
	}
	if got := len(*events); got != 1 {
		t.Errorf("%d notifications emitted, want 1", got)
	}
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	p, events, _ := newRecordingPresence()

	p.Join("s1", "c1")
	if got := p.Join("s2", "c1"); got != 1 {
		t.Fatalf("count in new room = %d, want 1", got)
	}
	if got := p.CountOf("s1"); got != 0 {
		t.Errorf("old room count = %d, want 0", got)
	}

	want := []countEvent{{"s1", 1}, {"s1", 0}, {"s2", 1}}
	if len(*events) != len(want) {
		t.Fatalf("events = %v, want %v", *events, want)
	}
	for i, ev := range want {
		if (*events)[i] != ev {
			t.Errorf("event[%d] = %v, want %v", i, (*events)[i], ev)
		}
	}
}

func TestLeaveUnjoinedRoomIsNoop(t *testing.T) {
	p, events, _ := newRecordingPresence()

	count, left := p.Leave("s1", "c1")
	if count != 0 || left {
		t.Fatalf("leave = (%d, %v), want (0, false)", count, left)
	}
	if len(*events) != 0 {
		t.Errorf("notifications emitted for a no-op leave: %v", *events)
	}

	p.Join("s1", "c1")
	count, left = p.Leave("s2", "c1")
	if count != 0 || left {
		t.Fatalf("leave of wrong room = (%d, %v), want (0, false)", count, left)
	}
	if got := p.CountOf("s1"); got != 1 {
		t.Errorf("membership lost on wrong-room leave: countOf = %d, want 1", got)
	}

	count, left = p.Leave("s1", "c1")
	if count != 0 || !left {
		t.Fatalf("leave of joined room = (%d, %v), want (0, true)", count, left)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	p, events, _ := newRecordingPresence()

	p.Join("s1", "c1")
	p.Join("s1", "c2")

	sessionID, count, ok := p.Disconnect("c1")
	if !ok {
		t.Fatal("disconnect did not find the connection")
	}
	if sessionID != "s1" || count != 1 {
		t.Errorf("disconnect = (%s, %d), want (s1, 1)", sessionID, count)
	}
	if got := p.CountOf("s1"); got != 1 {
		t.Errorf("countOf = %d, want 1", got)
	}
	if got := len(*events); got != 3 {
		t.Errorf("%d notifications emitted, want 3", got)
	}

	if _, _, ok := p.Disconnect("c1"); ok {
		t.Error("second disconnect reported a room")
	}
}

func TestNotificationsFollowMutationOrder(t *testing.T) {
	p, events, _ := newRecordingPresence()

	for i := 0; i < 5; i++ {
		p.Join("s1", fmt.Sprintf("c%d", i))
	}
	for i := 0; i < 3; i++ {
		p.Leave("s1", fmt.Sprintf("c%d", i))
	}

	want := []int{1, 2, 3, 4, 5, 4, 3, 2}
	if len(*events) != len(want) {
		t.Fatalf("%d notifications, want %d", len(*events), len(want))
	}
	for i, count := range want {
		if (*events)[i].count != count {
			t.Errorf("notification[%d] count = %d, want %d", i, (*events)[i].count, count)
		}
	}
}

func TestConcurrentJoinsAllLand(t *testing.T) {
	p, _, _ := newRecordingPresence()

	const m = 64
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Join("s1", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()

	if got := p.CountOf("s1"); got != m {
		t.Errorf("countOf = %d, want %d", got, m)
	}
	if got := p.PeakOf("s1"); got != m {
		t.Errorf("peakOf = %d, want %d", got, m)
	}
	if got := p.Total(); got != m {
		t.Errorf("total = %d, want %d", got, m)
	}
}

func TestDropRoomIfEmpty(t *testing.T) {
	p, _, _ := newRecordingPresence()

	p.Join("s1", "c1")
	if p.DropRoomIfEmpty("s1") {
		t.Fatal("dropped an occupied room")
	}
	p.Leave("s1", "c1")
	if !p.DropRoomIfEmpty("s1") {
		t.Fatal("did not drop an empty room")
	}
	if got := p.PeakOf("s1"); got != 0 {
		t.Errorf("peak survived room drop: %d", got)
	}
}
