// internal/game/engine.go
//
// Round state machine for a single Memorama round.
// Responsibilities:
//   - Own the deck, the two selection slots, and the attempt/elapsed counters.
//   - Apply intents (Start, Select, Restart) and timer input (Tick, Resolve).
//   - Track state transitions: not_started → in_progress ⇄ resolving → complete.
//   - Emit the finished Score exactly once per round.
//
// Notes:
//   - A Round is not safe for concurrent use; Session serializes access.
//   - A Round knows nothing about wall time. The display delay for a pending
//     comparison is scheduled by the caller, which then calls Resolve.
//   - New and restarted rounds wait for Start (start gate policy).
package game

import "fmt"

const noPick = -1

// Round holds the authoritative state of one round.
type Round struct {
	generate Generator
	player   string

	deck      []Card
	first     int
	second    int
	status    Status
	pending   Outcome
	attempts  int
	elapsed   int
	finalized bool // round_complete already emitted for this deck
}

// NewRound deals the first deck and returns a round waiting for Start.
// player is carried into the finished Score and may be empty.
func NewRound(gen Generator, player string) (*Round, error) {
	r := &Round{generate: gen, player: player}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Start opens the round. Ignored unless the round has not started yet.
func (r *Round) Start() []Event {
	if r.status != StatusNotStarted {
		return nil
	}
	r.status = StatusInProgress
	return []Event{{Kind: EventRoundStarted}}
}

// Select flips the card with the given id.
//
// Rejected silently (nil events, no state change) when:
//   - the round is not in progress (including while a pair is resolving),
//   - the card is already flipped or matched.
//
// The second pick of a turn increments attempts and evaluates the pair by face.
func (r *Round) Select(id int) ([]Event, error) {
	if id < 0 || id >= len(r.deck) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCard, id)
	}
	if r.status != StatusInProgress {
		return nil, nil
	}
	c := &r.deck[id]
	if c.Flipped || c.Matched {
		return nil, nil
	}

	c.Flipped = true
	events := []Event{{Kind: EventCardFlipped, CardIDs: []int{id}}}

	if r.first == noPick {
		r.first = id
		return events, nil
	}

	r.second = id
	r.attempts++
	return append(events, r.evaluate()...), nil
}

// evaluate compares the two picks. Only entered with both slots held.
func (r *Round) evaluate() []Event {
	a, b := &r.deck[r.first], &r.deck[r.second]
	ids := []int{a.ID, b.ID}

	if a.Face != b.Face {
		r.status = StatusResolving
		r.pending = OutcomeMismatch
		return []Event{{Kind: EventPairMismatched, CardIDs: ids}}
	}

	a.Matched, b.Matched = true, true
	events := []Event{{Kind: EventPairMatched, CardIDs: ids}}

	if r.allMatched() {
		r.clearSelection()
		r.status = StatusComplete
		return append(events, r.finalize()...)
	}
	r.status = StatusResolving
	r.pending = OutcomeMatch
	return events
}

// finalize emits round_complete once per deck.
func (r *Round) finalize() []Event {
	if r.finalized {
		return nil
	}
	r.finalized = true
	s := r.score()
	return []Event{{Kind: EventRoundComplete, Score: &s}}
}

// Pending reports the comparison outcome awaiting its display delay.
func (r *Round) Pending() Outcome { return r.pending }

// Resolve concludes the current turn after its display delay.
// A mismatched pair is turned face-down again. No-op when nothing is pending.
func (r *Round) Resolve() []Event {
	if r.status != StatusResolving || r.pending == OutcomeNone {
		return nil
	}
	ids := []int{r.first, r.second}
	if r.pending == OutcomeMismatch {
		r.deck[r.first].Flipped = false
		r.deck[r.second].Flipped = false
	}
	r.clearSelection()
	r.status = StatusInProgress
	return []Event{{Kind: EventTurnResolved, CardIDs: ids}}
}

// Tick advances the elapsed time by one second while the round is active.
func (r *Round) Tick() []Event {
	if !r.Active() {
		return nil
	}
	r.elapsed++
	return []Event{{Kind: EventTick}}
}

// Restart deals a new deck and returns the round to not_started.
// Valid in every state; any pending comparison is discarded.
func (r *Round) Restart() ([]Event, error) {
	if err := r.reset(); err != nil {
		return nil, err
	}
	return []Event{{Kind: EventRoundRestarted}}, nil
}

// Active reports whether the clock should be running for this round.
func (r *Round) Active() bool {
	return r.status == StatusInProgress || r.status == StatusResolving
}

// Status returns the current round status.
func (r *Round) Status() Status { return r.status }

// Snapshot returns a deep copy of the round. Leaderboard is left empty;
// Session fills it in.
func (r *Round) Snapshot() Snapshot {
	deck := make([]Card, len(r.deck))
	copy(deck, r.deck)
	n := 0
	if r.first != noPick {
		n++
	}
	if r.second != noPick {
		n++
	}
	return Snapshot{
		Deck:           deck,
		SelectionCount: n,
		Status:         r.status,
		Attempts:       r.attempts,
		ElapsedSeconds: r.elapsed,
		PlayerName:     r.player,
		Leaderboard:    []Score{},
	}
}

func (r *Round) reset() error {
	deck, err := r.generate()
	if err != nil {
		return err
	}
	r.deck = deck
	r.clearSelection()
	r.status = StatusNotStarted
	r.attempts = 0
	r.elapsed = 0
	r.finalized = false
	return nil
}

func (r *Round) clearSelection() {
	r.first, r.second = noPick, noPick
	r.pending = OutcomeNone
}

func (r *Round) allMatched() bool {
	for _, c := range r.deck {
		if !c.Matched {
			return false
		}
	}
	return len(r.deck) > 0
}

func (r *Round) score() Score {
	return Score{PlayerName: r.player, ElapsedSeconds: r.elapsed, Attempts: r.attempts}
}
