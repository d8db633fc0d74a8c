// internal/game/session.go
//
// Session runs one Round on a single event loop.
// Responsibilities:
//   - Serialize intents (Start/Select/Restart/Snapshot) and timer input.
//   - Drive the suspend-aware elapsed clock: the tick ticker exists only
//     while the round is active.
//   - Own the cancellable resolution timer for a pending comparison.
//   - Hand finished scores to the Recorder and fan out Updates to observers.
//
// Notes:
//   - All timers come from an injected clockwork.Clock (fake in tests).
//   - Restart stops and drains the resolution timer; the loop only reads the
//     current timer's channel, so a fire from a discarded turn never lands.
package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Timing holds the session's clock parameters.
type Timing struct {
	Tick          time.Duration // elapsed-time granularity
	MatchDelay    time.Duration // display time for a matched pair
	MismatchDelay time.Duration // display time before a mismatched pair flips back
}

// DefaultTiming returns a one-second tick, 500ms match and 1s mismatch delays.
func DefaultTiming() Timing {
	return Timing{Tick: time.Second, MatchDelay: 500 * time.Millisecond, MismatchDelay: time.Second}
}

// Update is what observers receive after every transition.
type Update struct {
	Event    Event    `json:"event"`
	Snapshot Snapshot `json:"snapshot"`
}

type intentKind int

const (
	intentSnapshot intentKind = iota
	intentStart
	intentSelect
	intentRestart
)

type intent struct {
	kind   intentKind
	cardID int
	reply  chan result
}

type result struct {
	snap Snapshot
	err  error
}

// Session owns a Round and everything asynchronous around it.
type Session struct {
	ID string

	clock    clockwork.Clock
	timing   Timing
	round    *Round
	recorder Recorder

	intents chan intent
	done    chan struct{}

	ticker  clockwork.Ticker // non-nil only while the round is active
	resolve clockwork.Timer  // non-nil only while a comparison is pending

	mu         sync.Mutex // guards subs, lastActive
	subs       map[chan Update]struct{}
	lastActive time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock overrides the real clock.
func WithClock(c clockwork.Clock) SessionOption { return func(s *Session) { s.clock = c } }

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) SessionOption { return func(s *Session) { s.timing = t } }

// WithID sets the session identifier (a random UUID otherwise).
func WithID(id string) SessionOption { return func(s *Session) { s.ID = id } }

// NewSession wraps round. rec may be nil, in which case scores are dropped.
// Call Run to start processing.
func NewSession(round *Round, rec Recorder, opts ...SessionOption) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		clock:    clockwork.NewRealClock(),
		timing:   DefaultTiming(),
		round:    round,
		recorder: rec,
		intents:  make(chan intent),
		done:     make(chan struct{}),
		subs:     make(map[chan Update]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActive = s.clock.Now()
	return s
}

// Run processes intents and timer fires until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()

	for {
		var tickC, resolveC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.Chan()
		}
		if s.resolve != nil {
			resolveC = s.resolve.Chan()
		}

		select {
		case <-ctx.Done():
			return

		case in := <-s.intents:
			snap, err := s.handle(ctx, in)
			in.reply <- result{snap: snap, err: err}

		case <-tickC:
			s.apply(ctx, s.round.Tick())

		case <-resolveC:
			s.resolve = nil
			s.apply(ctx, s.round.Resolve())
		}
	}
}

func (s *Session) handle(ctx context.Context, in intent) (Snapshot, error) {
	s.touch()

	switch in.kind {
	case intentStart:
		s.apply(ctx, s.round.Start())

	case intentSelect:
		events, err := s.round.Select(in.cardID)
		if err != nil {
			return s.snapshot(), err
		}
		s.apply(ctx, events)

	case intentRestart:
		// Cancel before the deck is replaced.
		s.stopResolve()
		s.stopTicker()
		events, err := s.round.Restart()
		if err != nil {
			log.Error().Err(err).Str("round_id", s.ID).Msg("restart round")
			s.syncTimers()
			return s.snapshot(), err
		}
		s.apply(ctx, events)
	}
	return s.snapshot(), nil
}

// apply brings timers in line with the round and notifies observers.
func (s *Session) apply(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	s.syncTimers()

	for _, ev := range events {
		if ev.Kind == EventRoundComplete && ev.Score != nil {
			s.record(ctx, *ev.Score)
		}
	}
	snap := s.snapshot()
	for _, ev := range events {
		s.publish(Update{Event: ev, Snapshot: snap})
	}
}

func (s *Session) syncTimers() {
	switch {
	case s.round.Active() && s.ticker == nil:
		s.ticker = s.clock.NewTicker(s.timing.Tick)
	case !s.round.Active() && s.ticker != nil:
		s.stopTicker()
	}

	switch p := s.round.Pending(); {
	case p == OutcomeNone:
		s.stopResolve()
	case s.resolve == nil:
		d := s.timing.MismatchDelay
		if p == OutcomeMatch {
			d = s.timing.MatchDelay
		}
		s.resolve = s.clock.NewTimer(d)
	}
}

func (s *Session) record(ctx context.Context, score Score) {
	log.Info().
		Str("round_id", s.ID).
		Int("elapsed_seconds", score.ElapsedSeconds).
		Int("attempts", score.Attempts).
		Msg("round complete")
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, score); err != nil {
		log.Warn().Err(err).Str("round_id", s.ID).Msg("record score")
	}
}

func (s *Session) snapshot() Snapshot {
	snap := s.round.Snapshot()
	// The board is shared by every session on the same recorder.
	if s.recorder != nil {
		snap.Leaderboard = append([]Score{}, s.recorder.Top()...)
	}
	return snap
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *Session) stopResolve() {
	if s.resolve != nil {
		stopAndDrainTimer(s.resolve)
		s.resolve = nil
	}
}

// stopAndDrainTimer stops t and empties its channel if it already fired.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

func (s *Session) shutdown() {
	s.stopResolve()
	s.stopTicker()
	close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// ------------------------------- intents -----------------------------------

// Start opens the round.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, intent{kind: intentStart})
}

// Select picks the card with the given id. Rejected picks return the
// unchanged snapshot and a nil error; unknown ids return ErrUnknownCard.
func (s *Session) Select(ctx context.Context, cardID int) (Snapshot, error) {
	return s.do(ctx, intent{kind: intentSelect, cardID: cardID})
}

// Restart deals a new deck, cancelling any pending resolution.
func (s *Session) Restart(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, intent{kind: intentRestart})
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.do(ctx, intent{kind: intentSnapshot})
}

func (s *Session) do(ctx context.Context, in intent) (Snapshot, error) {
	in.reply = make(chan result, 1)
	select {
	case s.intents <- in:
	case <-s.done:
		return Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case r := <-in.reply:
		return r.snap, r.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// ------------------------------ observers ----------------------------------

const subscriberBuffer = 64

// Subscribe registers an observer. The channel is closed when the session
// ends, when cancel is called, or when the observer falls too far behind.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.mu.Lock()
	select {
	case <-s.done:
		close(ch)
	default:
		s.subs[ch] = struct{}{}
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Session) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
			log.Debug().Str("round_id", s.ID).Msg("dropping slow subscriber")
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// ------------------------------ lifecycle ----------------------------------

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// LastActive returns the time of the most recent intent.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.clock.Now()
	s.mu.Unlock()
}
