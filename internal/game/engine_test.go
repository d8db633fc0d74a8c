package game

import (
	"errors"
	"testing"
)

// fixed returns a Generator that always deals layout in order.
func fixed(layout ...string) Generator {
	return func() ([]Card, error) { return DeckFromFaces(layout), nil }
}

func newStartedRound(t *testing.T, layout ...string) *Round {
	t.Helper()
	r, err := NewRound(fixed(layout...), "")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	r.Start()
	return r
}

func mustSelect(t *testing.T, r *Round, id int) []Event {
	t.Helper()
	events, err := r.Select(id)
	if err != nil {
		t.Fatalf("Select(%d) error = %v", id, err)
	}
	return events
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func sameKinds(got []Event, want ...EventKind) bool {
	k := kinds(got)
	if len(k) != len(want) {
		return false
	}
	for i := range want {
		if k[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRoundWaitsForStart(t *testing.T) {
	r, err := NewRound(fixed("A", "B", "A", "B"), "")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	if r.Status() != StatusNotStarted {
		t.Fatalf("status = %s, want %s", r.Status(), StatusNotStarted)
	}
	if ev := mustSelect(t, r, 0); ev != nil {
		t.Fatalf("Select before Start produced %v", kinds(ev))
	}
	if ev := r.Tick(); ev != nil {
		t.Fatalf("Tick before Start produced %v", kinds(ev))
	}
	if got := r.Snapshot().ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed = %d, want 0", got)
	}

	if ev := r.Start(); !sameKinds(ev, EventRoundStarted) {
		t.Fatalf("Start() = %v", kinds(ev))
	}
	if ev := r.Start(); ev != nil {
		t.Fatalf("second Start() = %v, want nil", kinds(ev))
	}
}

func TestRoundMatchScenario(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B")

	if ev := mustSelect(t, r, 0); !sameKinds(ev, EventCardFlipped) {
		t.Fatalf("first pick events = %v", kinds(ev))
	}
	if snap := r.Snapshot(); snap.SelectionCount != 1 || snap.Attempts != 0 {
		t.Fatalf("after first pick: selection=%d attempts=%d", snap.SelectionCount, snap.Attempts)
	}

	if ev := mustSelect(t, r, 2); !sameKinds(ev, EventCardFlipped, EventPairMatched) {
		t.Fatalf("second pick events = %v", kinds(ev))
	}
	snap := r.Snapshot()
	if !snap.Deck[0].Matched || !snap.Deck[2].Matched {
		t.Fatalf("pair not matched: %+v", snap.Deck)
	}
	if snap.Attempts != 1 || snap.Status != StatusResolving || r.Pending() != OutcomeMatch {
		t.Fatalf("attempts=%d status=%s pending=%v", snap.Attempts, snap.Status, r.Pending())
	}

	if ev := r.Resolve(); !sameKinds(ev, EventTurnResolved) {
		t.Fatalf("Resolve() = %v", kinds(ev))
	}
	snap = r.Snapshot()
	if snap.Status != StatusInProgress || snap.SelectionCount != 0 {
		t.Fatalf("after resolve: status=%s selection=%d", snap.Status, snap.SelectionCount)
	}
	if !snap.Deck[0].Flipped || !snap.Deck[2].Flipped {
		t.Fatalf("matched cards must stay face-up: %+v", snap.Deck)
	}

	r.Tick()
	r.Tick()
	r.Tick()

	mustSelect(t, r, 1)
	ev := mustSelect(t, r, 3)
	if !sameKinds(ev, EventCardFlipped, EventPairMatched, EventRoundComplete) {
		t.Fatalf("final pick events = %v", kinds(ev))
	}
	got := ev[len(ev)-1].Score
	if got == nil || got.Attempts != 2 || got.ElapsedSeconds != 3 {
		t.Fatalf("score = %+v, want attempts=2 elapsed=3", got)
	}

	snap = r.Snapshot()
	if snap.Status != StatusComplete || snap.SelectionCount != 0 {
		t.Fatalf("status=%s selection=%d", snap.Status, snap.SelectionCount)
	}
	for _, c := range snap.Deck {
		if !c.Matched || !c.Flipped {
			t.Fatalf("card %d not matched at completion", c.ID)
		}
	}

	// Nothing further changes a complete round, and the score is not re-emitted.
	if ev := r.Resolve(); ev != nil {
		t.Fatalf("Resolve() on complete round = %v", kinds(ev))
	}
	if ev := r.Tick(); ev != nil {
		t.Fatalf("Tick() on complete round = %v", kinds(ev))
	}
	if ev := mustSelect(t, r, 0); ev != nil {
		t.Fatalf("Select() on complete round = %v", kinds(ev))
	}
}

func TestRoundMismatchFlipsBack(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B")

	mustSelect(t, r, 0)
	if ev := mustSelect(t, r, 1); !sameKinds(ev, EventCardFlipped, EventPairMismatched) {
		t.Fatalf("events = %v", kinds(ev))
	}
	snap := r.Snapshot()
	if snap.Attempts != 1 || snap.Status != StatusResolving || r.Pending() != OutcomeMismatch {
		t.Fatalf("attempts=%d status=%s pending=%v", snap.Attempts, snap.Status, r.Pending())
	}
	if !snap.Deck[0].Flipped || !snap.Deck[1].Flipped {
		t.Fatalf("picks must be face-up while resolving")
	}

	r.Resolve()
	snap = r.Snapshot()
	if snap.Deck[0].Flipped || snap.Deck[1].Flipped || snap.Deck[0].Matched || snap.Deck[1].Matched {
		t.Fatalf("mismatched cards not turned back: %+v", snap.Deck)
	}
	if snap.Status != StatusInProgress || snap.SelectionCount != 0 || snap.Attempts != 1 {
		t.Fatalf("status=%s selection=%d attempts=%d", snap.Status, snap.SelectionCount, snap.Attempts)
	}
}

func TestRoundRejectsSelectWhileResolving(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B", "C", "C")
	mustSelect(t, r, 0)
	mustSelect(t, r, 1)

	before := r.Snapshot()
	if ev := mustSelect(t, r, 4); ev != nil {
		t.Fatalf("Select during resolving = %v", kinds(ev))
	}
	after := r.Snapshot()
	if after.Deck[4].Flipped || after.Attempts != before.Attempts || after.SelectionCount != before.SelectionCount {
		t.Fatalf("state changed during resolving: before=%+v after=%+v", before, after)
	}
}

func TestRoundRejectsFlippedAndMatchedCards(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B")

	mustSelect(t, r, 0)
	if ev := mustSelect(t, r, 0); ev != nil {
		t.Fatalf("re-selecting the first pick = %v", kinds(ev))
	}
	if got := r.Snapshot().Attempts; got != 0 {
		t.Fatalf("attempts = %d, want 0", got)
	}

	mustSelect(t, r, 2)
	r.Resolve()
	if ev := mustSelect(t, r, 2); ev != nil {
		t.Fatalf("selecting a matched card = %v", kinds(ev))
	}
}

func TestRoundUnknownCard(t *testing.T) {
	r := newStartedRound(t, "A", "A")
	for _, id := range []int{-1, 2, 99} {
		if _, err := r.Select(id); !errors.Is(err, ErrUnknownCard) {
			t.Fatalf("Select(%d) error = %v, want ErrUnknownCard", id, err)
		}
	}
}

func TestRoundAttemptsCountTurnsOnly(t *testing.T) {
	r := newStartedRound(t, "A", "B", "C", "A", "B", "C")
	turns := [][2]int{{0, 1}, {2, 3}, {0, 3}, {1, 4}, {2, 5}}

	for i, tr := range turns {
		mustSelect(t, r, tr[0])
		if got := r.Snapshot().Attempts; got != i {
			t.Fatalf("after first pick of turn %d: attempts = %d, want %d", i+1, got, i)
		}
		mustSelect(t, r, tr[1])
		if got := r.Snapshot().Attempts; got != i+1 {
			t.Fatalf("after turn %d: attempts = %d, want %d", i+1, got, i+1)
		}
		r.Resolve()
	}
	if r.Status() != StatusComplete {
		t.Fatalf("status = %s, want complete", r.Status())
	}
}

func TestRoundTickOnlyWhileActive(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B")
	r.Tick()
	mustSelect(t, r, 0)
	mustSelect(t, r, 1)
	r.Tick() // resolving still counts
	if got := r.Snapshot().ElapsedSeconds; got != 2 {
		t.Fatalf("elapsed = %d, want 2", got)
	}
}

func TestRoundRestartIsIdempotent(t *testing.T) {
	r := newStartedRound(t, "A", "B", "A", "B")
	mustSelect(t, r, 0)
	mustSelect(t, r, 1)
	r.Tick()

	for i := 0; i < 3; i++ {
		ev, err := r.Restart()
		if err != nil {
			t.Fatalf("Restart() error = %v", err)
		}
		if !sameKinds(ev, EventRoundRestarted) {
			t.Fatalf("Restart() = %v", kinds(ev))
		}
		snap := r.Snapshot()
		if snap.Attempts != 0 || snap.ElapsedSeconds != 0 || snap.Status != StatusNotStarted || snap.SelectionCount != 0 {
			t.Fatalf("restart %d: %+v", i, snap)
		}
		if r.Pending() != OutcomeNone {
			t.Fatalf("pending outcome survived restart")
		}
		for _, c := range snap.Deck {
			if c.Flipped || c.Matched {
				t.Fatalf("card %d not reset", c.ID)
			}
		}
	}

	// A stale resolution after restart must not touch the new deck.
	if ev := r.Resolve(); ev != nil {
		t.Fatalf("Resolve() after restart = %v", kinds(ev))
	}
}

func TestRoundCompletesAgainAfterRestart(t *testing.T) {
	r := newStartedRound(t, "A", "A")
	mustSelect(t, r, 0)
	if ev := mustSelect(t, r, 1); !sameKinds(ev, EventCardFlipped, EventPairMatched, EventRoundComplete) {
		t.Fatalf("events = %v", kinds(ev))
	}

	if _, err := r.Restart(); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	r.Start()
	mustSelect(t, r, 1)
	if ev := mustSelect(t, r, 0); !sameKinds(ev, EventCardFlipped, EventPairMatched, EventRoundComplete) {
		t.Fatalf("events after restart = %v", kinds(ev))
	}
}

func TestRoundRestartPropagatesGeneratorError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	gen := func() ([]Card, error) {
		calls++
		if calls > 1 {
			return nil, boom
		}
		return DeckFromFaces([]string{"A", "A"}), nil
	}
	r, err := NewRound(gen, "")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	if _, err := r.Restart(); !errors.Is(err, boom) {
		t.Fatalf("Restart() error = %v, want boom", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := newStartedRound(t, "A", "A")
	snap := r.Snapshot()
	snap.Deck[0].Matched = true
	if r.Snapshot().Deck[0].Matched {
		t.Fatalf("mutating a snapshot changed the round")
	}
}

func TestScoreCarriesPlayerName(t *testing.T) {
	r, err := NewRound(fixed("A", "A"), "ana")
	if err != nil {
		t.Fatalf("NewRound() error = %v", err)
	}
	r.Start()
	mustSelect(t, r, 0)
	ev := mustSelect(t, r, 1)
	if s := ev[len(ev)-1].Score; s == nil || s.PlayerName != "ana" {
		t.Fatalf("score = %+v, want player ana", s)
	}
}
