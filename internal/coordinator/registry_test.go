package coordinator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"livecast/internal/models"
)

func TestBeginTwiceReturnsAlreadyLive(t *testing.T) {
	r := NewRegistry()

	first, err := r.Begin("abc123", "Demo", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if first.State != models.SessionStateLive {
		t.Errorf("state = %q, want live", first.State)
	}

	second, err := r.Begin("abc123", "Demo", "", models.SourceIngest)
	if !errors.Is(err, models.ErrAlreadyLive) {
		t.Fatalf("err = %v, want ErrAlreadyLive", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("duplicate begin returned session %s, want %s", second.SessionID, first.SessionID)
	}

	if got := len(r.ListLive()); got != 1 {
		t.Errorf("listLive returned %d sessions, want 1", got)
	}
}

func TestEndBeforeBeginReturnsNotLive(t *testing.T) {
	r := NewRegistry()

	_, err := r.End("never-started", models.SourceControl)
	if !errors.Is(err, models.ErrNotLive) {
		t.Fatalf("err = %v, want ErrNotLive", err)
	}
	if got := len(r.ListLive()); got != 0 {
		t.Errorf("listLive returned %d sessions, want 0", got)
	}
}

func TestEndTwiceSecondSeesNotLive(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Begin("k", "t", "", models.SourceControl); err != nil {
		t.Fatal(err)
	}

	ended, err := r.End("k", models.SourceIngest)
	if err != nil {
		t.Fatal(err)
	}
	if ended.State != models.SessionStateEnded {
		t.Errorf("state = %q, want ended", ended.State)
	}
	if !ended.EndedAt.After(ended.StartedAt) && !ended.EndedAt.Equal(ended.StartedAt) {
		t.Errorf("endedAt %v precedes startedAt %v", ended.EndedAt, ended.StartedAt)
	}

	if _, err := r.End("k", models.SourceControl); !errors.Is(err, models.ErrNotLive) {
		t.Fatalf("second end err = %v, want ErrNotLive", err)
	}
}

func TestConcurrentEndsProduceOneEnded(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Begin("k", "t", "", models.SourceControl); err != nil {
		t.Fatal(err)
	}

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	endedCount := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.End("k", models.SourceIngest); err == nil {
				mu.Lock()
				endedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if endedCount != 1 {
		t.Errorf("%d ends succeeded, want exactly 1", endedCount)
	}
}

func TestRestartedKeyGetsFreshSession(t *testing.T) {
	r := NewRegistry()

	first, err := r.Begin("k", "t", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.End("k", models.SourceControl); err != nil {
		t.Fatal(err)
	}

	second, err := r.Begin("k", "t", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}
	if second.SessionID == first.SessionID {
		t.Error("restarted key reused the old session id")
	}

	// Both instantiations are addressable until evicted.
	if _, err := r.Lookup(first.SessionID); err != nil {
		t.Errorf("looking up ended session: %v", err)
	}
	if _, err := r.Lookup(second.SessionID); err != nil {
		t.Errorf("looking up live session: %v", err)
	}
}

func TestListLiveMostRecentFirst(t *testing.T) {
	r := NewRegistry()
	s1, err := r.Begin("k1", "first", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	s2, err := r.Begin("k2", "second", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}

	live := r.ListLive()
	if len(live) != 2 {
		t.Fatalf("listLive returned %d sessions, want 2", len(live))
	}
	if live[0].SessionID != s2.SessionID || live[1].SessionID != s1.SessionID {
		t.Errorf("order = [%s %s], want [%s %s]", live[0].SessionID, live[1].SessionID, s2.SessionID, s1.SessionID)
	}
}

func TestEvict(t *testing.T) {
	r := NewRegistry()
	session, err := r.Begin("k", "t", "", models.SourceControl)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Evict(session.SessionID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("evicting live session err = %v, want ErrInvalidTransition", err)
	}

	if _, err := r.End("k", models.SourceControl); err != nil {
		t.Fatal(err)
	}
	if err := r.Evict(session.SessionID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup(session.SessionID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("lookup after evict err = %v, want ErrNotFound", err)
	}
	if err := r.Evict(session.SessionID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("double evict err = %v, want ErrNotFound", err)
	}
}

func TestStaleSkipsSessionsNeverSeenByIngest(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Begin("api-only", "t", "", models.SourceControl); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Begin("published", "t", "", models.SourceIngest); err != nil {
		t.Fatal(err)
	}
	if err := r.Touch("published"); err != nil {
		t.Fatal(err)
	}

	stale := r.Stale(time.Now().UTC().Add(time.Minute))
	if len(stale) != 1 {
		t.Fatalf("stale returned %d sessions, want 1", len(stale))
	}
	if stale[0].StreamKey != "published" {
		t.Errorf("stale key = %q, want published", stale[0].StreamKey)
	}
}

func TestTouchUnknownKey(t *testing.T) {
	r := NewRegistry()
	if err := r.Touch("nope"); !errors.Is(err, models.ErrNotLive) {
		t.Fatalf("err = %v, want ErrNotLive", err)
	}
}
