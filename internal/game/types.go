// internal/game/types.go
//
// Core type definitions for the Memorama game engine.
// Defines:
//   - Card: one position in the deck (face, flipped, matched).
//   - Status: coarse round state (not_started/in_progress/resolving/complete).
//   - Score: a finished round's result, as ranked by the leaderboard.
//   - Event: discrete notifications emitted after every transition.
//   - Snapshot: immutable view of a round handed to observers.

package game

import (
	"context"
	"errors"
)

// Status represents the coarse state of a round.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusResolving  Status = "resolving"
	StatusComplete   Status = "complete"
)

// Outcome is the comparison result waiting for its display delay.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeMatch
	OutcomeMismatch
)

// EventKind names a discrete notification suitable for feedback cues.
type EventKind string

const (
	EventRoundStarted   EventKind = "round_started"
	EventCardFlipped    EventKind = "card_flipped"
	EventPairMatched    EventKind = "pair_matched"
	EventPairMismatched EventKind = "pair_mismatched"
	EventTurnResolved   EventKind = "turn_resolved"
	EventRoundComplete  EventKind = "round_complete"
	EventRoundRestarted EventKind = "round_restarted"
	EventTick           EventKind = "tick"
)

var (
	// ErrUnknownCard is returned when a selection names a card id outside the deck.
	ErrUnknownCard = errors.New("unknown card")
	// ErrInvalidPairCount is returned for pair counts below one.
	ErrInvalidPairCount = errors.New("pair count must be at least 1")
	// ErrNotEnoughFaces is returned when the catalog cannot cover the pair count.
	ErrNotEnoughFaces = errors.New("not enough distinct faces for pair count")
	// ErrSessionClosed is returned for intents sent after a session's loop exited.
	ErrSessionClosed = errors.New("session closed")
)

// Card holds the state of a single deck position.
type Card struct {
	ID      int    `json:"id"`      // Deck position, 0..2P-1.
	Face    string `json:"face"`    // Face key; exactly two cards share one.
	Flipped bool   `json:"flipped"` // Face-up (permanently true once matched).
	Matched bool   `json:"matched"` // Monotonic within a round.
}

// Score is the result of one completed round.
type Score struct {
	PlayerName     string `json:"playerName,omitempty"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Attempts       int    `json:"attempts"`
}

// Event is emitted after a transition. CardIDs lists the cards involved, if any;
// Score is set only for EventRoundComplete.
type Event struct {
	Kind    EventKind `json:"kind"`
	CardIDs []int     `json:"cardIds,omitempty"`
	Score   *Score    `json:"score,omitempty"`
}

// Snapshot is a read-only copy of a round. Mutating it never affects the round.
type Snapshot struct {
	Deck           []Card  `json:"deck"`
	SelectionCount int     `json:"selectionCount"`
	Status         Status  `json:"status"`
	Attempts       int     `json:"attempts"`
	ElapsedSeconds int     `json:"elapsedSeconds"`
	PlayerName     string  `json:"playerName,omitempty"`
	Leaderboard    []Score `json:"leaderboard"`
}

// Recorder receives finished scores. Implemented by the leaderboard ledger.
type Recorder interface {
	// Record ranks s and returns the resulting leaderboard.
	Record(ctx context.Context, s Score) ([]Score, error)
	// Top returns the current leaderboard.
	Top() []Score
}
