package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type memRecorder struct {
	mu     sync.Mutex
	scores []Score
}

func (m *memRecorder) Record(_ context.Context, s Score) ([]Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, s)
	return append([]Score{}, m.scores...), nil
}

func (m *memRecorder) Top() []Score {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Score{}, m.scores...)
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scores)
}

var testTiming = Timing{Tick: time.Second, MatchDelay: 500 * time.Millisecond, MismatchDelay: time.Second}

func runSession(t *testing.T, rec Recorder, layout ...string) (*Session, *clockwork.FakeClock, <-chan Update) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	r, err := NewRound(fixed(layout...), "")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	s := NewSession(r, rec, WithClock(clock), WithTiming(testTiming), WithID("test"))

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})

	updates, unsubscribe := s.Subscribe()
	t.Cleanup(unsubscribe)
	return s, clock, updates
}

func waitFor(t *testing.T, updates <-chan Update, kind EventKind) Update {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				t.Fatalf("updates closed while waiting for %s", kind)
			}
			if u.Event.Kind == kind {
				return u
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func call(t *testing.T, f func(context.Context) (Snapshot, error)) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := f(ctx)
	if err != nil {
		t.Fatalf("intent error = %v", err)
	}
	return snap
}

func pick(s *Session, id int) func(context.Context) (Snapshot, error) {
	return func(ctx context.Context) (Snapshot, error) { return s.Select(ctx, id) }
}

func TestSessionTimerRunsOnlyWhileActive(t *testing.T) {
	s, clock, updates := runSession(t, nil, "A", "B", "A", "B")

	clock.Advance(5 * time.Second)
	if got := call(t, s.Snapshot).ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed before start = %d, want 0", got)
	}

	call(t, s.Start)
	for want := 1; want <= 3; want++ {
		clock.Advance(time.Second)
		u := waitFor(t, updates, EventTick)
		if u.Snapshot.ElapsedSeconds != want {
			t.Fatalf("elapsed = %d, want %d", u.Snapshot.ElapsedSeconds, want)
		}
	}
}

func TestSessionMismatchResolvesAfterDelay(t *testing.T) {
	s, clock, updates := runSession(t, nil, "A", "B", "A", "B")
	call(t, s.Start)
	call(t, pick(s, 0))
	snap := call(t, pick(s, 1))
	if snap.Status != StatusResolving || snap.Attempts != 1 {
		t.Fatalf("status=%s attempts=%d", snap.Status, snap.Attempts)
	}

	// A third pick while resolving is rejected.
	if snap := call(t, pick(s, 2)); snap.Deck[2].Flipped || snap.SelectionCount != 2 {
		t.Fatalf("pick during resolving changed state: %+v", snap)
	}

	clock.Advance(time.Second)
	u := waitFor(t, updates, EventTurnResolved)
	if u.Snapshot.Deck[0].Flipped || u.Snapshot.Deck[1].Flipped {
		t.Fatalf("mismatched cards still face-up: %+v", u.Snapshot.Deck)
	}
	if u.Snapshot.Status != StatusInProgress || u.Snapshot.SelectionCount != 0 {
		t.Fatalf("status=%s selection=%d", u.Snapshot.Status, u.Snapshot.SelectionCount)
	}
}

func TestSessionMatchResolvesAfterShortDelay(t *testing.T) {
	s, clock, updates := runSession(t, nil, "A", "B", "A", "B")
	call(t, s.Start)
	call(t, pick(s, 0))
	call(t, pick(s, 2))

	clock.Advance(500 * time.Millisecond)
	u := waitFor(t, updates, EventTurnResolved)
	if u.Snapshot.Status != StatusInProgress || !u.Snapshot.Deck[0].Matched || !u.Snapshot.Deck[2].Flipped {
		t.Fatalf("unexpected snapshot after match: %+v", u.Snapshot)
	}
}

func TestSessionRestartCancelsPendingResolution(t *testing.T) {
	s, clock, updates := runSession(t, nil, "A", "B", "A", "B")
	call(t, s.Start)
	call(t, pick(s, 0))
	call(t, pick(s, 1))

	snap := call(t, s.Restart)
	if snap.Status != StatusNotStarted || snap.Attempts != 0 || snap.ElapsedSeconds != 0 {
		t.Fatalf("after restart: %+v", snap)
	}

	// The clock is suspended until the new round starts, and the discarded
	// mismatch timer would have fired inside this window.
	clock.Advance(3 * time.Second)
	if got := call(t, s.Snapshot).ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed after restart = %d, want 0", got)
	}

	call(t, s.Start)
	call(t, pick(s, 0))

	clock.Advance(time.Second)
	waitFor(t, updates, EventTick)

	snap = call(t, s.Snapshot)
	if !snap.Deck[0].Flipped || snap.SelectionCount != 1 || snap.Status != StatusInProgress {
		t.Fatalf("new deck disturbed by stale resolution: %+v", snap)
	}
	for {
		select {
		case u := <-updates:
			if u.Event.Kind == EventTurnResolved {
				t.Fatalf("stale turn_resolved delivered after restart")
			}
		default:
			return
		}
	}
}

func TestSessionRecordsScoreOnce(t *testing.T) {
	rec := &memRecorder{}
	s, clock, updates := runSession(t, rec, "A", "A")
	call(t, s.Start)

	clock.Advance(time.Second)
	waitFor(t, updates, EventTick)

	call(t, pick(s, 0))
	snap := call(t, pick(s, 1))
	if snap.Status != StatusComplete {
		t.Fatalf("status = %s, want complete", snap.Status)
	}
	if len(snap.Leaderboard) != 1 || snap.Leaderboard[0] != (Score{ElapsedSeconds: 1, Attempts: 1}) {
		t.Fatalf("leaderboard = %+v", snap.Leaderboard)
	}
	u := waitFor(t, updates, EventRoundComplete)
	if u.Event.Score == nil || *u.Event.Score != (Score{ElapsedSeconds: 1, Attempts: 1}) {
		t.Fatalf("round_complete score = %+v", u.Event.Score)
	}

	// Completed rounds freeze the clock and ignore further picks.
	clock.Advance(3 * time.Second)
	call(t, pick(s, 0))
	if got := call(t, s.Snapshot).ElapsedSeconds; got != 1 {
		t.Fatalf("elapsed after completion = %d, want 1", got)
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("recorded %d scores, want 1", got)
	}
}

func TestSessionUnknownCard(t *testing.T) {
	s, _, _ := runSession(t, nil, "A", "A")
	call(t, s.Start)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Select(ctx, 7); !errors.Is(err, ErrUnknownCard) {
		t.Fatalf("Select(7) error = %v, want ErrUnknownCard", err)
	}
}

func TestSessionClosed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, err := NewRound(fixed("A", "A"), "")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	s := NewSession(r, nil, WithClock(clock))
	updates, _ := s.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	cancel()
	<-s.Done()

	if _, ok := <-updates; ok {
		t.Fatalf("subscriber channel not closed on shutdown")
	}
	if _, err := s.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Start() after close error = %v, want ErrSessionClosed", err)
	}
	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("late subscription not closed")
	}
}

func TestSessionSnapshotSeesSharedBoard(t *testing.T) {
	rec := &memRecorder{}
	a, _, _ := runSession(t, rec, "A", "A")
	b, _, _ := runSession(t, rec, "A", "B", "A", "B")

	if got := len(call(t, b.Snapshot).Leaderboard); got != 0 {
		t.Fatalf("leaderboard before any completion = %d entries, want 0", got)
	}

	call(t, a.Start)
	call(t, pick(a, 0))
	call(t, pick(a, 1))

	if got := len(call(t, b.Snapshot).Leaderboard); got != 1 {
		t.Fatalf("other session's leaderboard = %d entries, want 1", got)
	}
}
