// internal/leaderboard/ledger.go
//
// Score ledger: a bounded, ordered leaderboard persisted as one named record.
// Responsibilities:
//   - Load the persisted snapshot once at startup (bad or missing data → empty board).
//   - Rank new scores by (elapsed seconds asc, attempts asc) and keep the top N.
//   - Persist the whole board on every qualifying completion.
//
// Notes:
//   - Entries are never mutated in place; every update replaces the slice.
//   - The in-memory board is swapped only after the write succeeds, so memory
//     and storage never disagree.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorama/apps/go-server/internal/game"
	"github.com/robalobadob/memorama/apps/go-server/internal/store"
)

const (
	DefaultKey      = "ranking"
	DefaultCapacity = 5
)

// Ledger implements game.Recorder on top of a store.Store.
type Ledger struct {
	store    store.Store
	key      string
	capacity int

	mu    sync.RWMutex
	board []game.Score
}

// New constructs a Ledger. Empty key and non-positive capacity fall back to
// DefaultKey and DefaultCapacity.
func New(st store.Store, key string, capacity int) *Ledger {
	if key == "" {
		key = DefaultKey
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{store: st, key: key, capacity: capacity, board: []game.Score{}}
}

// Load reads the persisted board into memory and returns it.
// Missing or malformed payloads yield an empty board; they are never fatal.
func (l *Ledger) Load(ctx context.Context) []game.Score {
	board := l.read(ctx)

	l.mu.Lock()
	l.board = board
	l.mu.Unlock()
	return slices.Clone(board)
}

func (l *Ledger) read(ctx context.Context) []game.Score {
	payload, err := l.store.Get(ctx, l.key)
	if errors.Is(err, store.ErrNotFound) {
		return []game.Score{}
	}
	if err != nil {
		log.Warn().Err(err).Str("record", l.key).Msg("read leaderboard; starting empty")
		return []game.Score{}
	}

	var stored []game.Score
	if err := json.Unmarshal(payload, &stored); err != nil {
		log.Warn().Err(err).Str("record", l.key).Msg("parse leaderboard; starting empty")
		return []game.Score{}
	}

	// Re-rank in case the record was written by hand or with another capacity.
	board := []game.Score{}
	for _, s := range stored {
		if s.ElapsedSeconds < 0 || s.Attempts < 0 {
			continue
		}
		board = Insert(board, s, l.capacity)
	}
	return board
}

// Record ranks s, persists the resulting board, and returns it.
// A score that does not make the board leaves storage untouched.
func (l *Ledger) Record(ctx context.Context, s game.Score) ([]game.Score, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := Insert(l.board, s, l.capacity)
	if slices.Equal(next, l.board) {
		return slices.Clone(l.board), nil
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return slices.Clone(l.board), fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := l.store.Put(ctx, l.key, payload); err != nil {
		return slices.Clone(l.board), fmt.Errorf("persist leaderboard: %w", err)
	}
	l.board = next

	log.Debug().
		Int("elapsed_seconds", s.ElapsedSeconds).
		Int("attempts", s.Attempts).
		Int("entries", len(next)).
		Msg("leaderboard updated")
	return slices.Clone(next), nil
}

// Top returns a copy of the current board.
func (l *Ledger) Top() []game.Score {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.board)
}

// Insert returns a new board holding board plus s, ranked and truncated to
// capacity. board itself is not modified. Ties keep earlier entries first.
func Insert(board []game.Score, s game.Score, capacity int) []game.Score {
	next := make([]game.Score, 0, len(board)+1)
	next = append(next, board...)
	next = append(next, s)
	slices.SortStableFunc(next, Compare)
	if len(next) > capacity {
		next = next[:capacity]
	}
	return next
}

// Compare orders scores by elapsed seconds, then attempts.
func Compare(a, b game.Score) int {
	if a.ElapsedSeconds != b.ElapsedSeconds {
		return a.ElapsedSeconds - b.ElapsedSeconds
	}
	return a.Attempts - b.Attempts
}
