// internal/game/deck.go
//
// Deck generation for a Memorama round.
// Responsibilities:
//   - Validate that a face catalog can cover the configured pair count.
//   - Build 2P cards (two per face) in a uniformly random order.
//   - Assign card IDs by deck position after shuffling.

package game

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Generator produces a fresh deck for each round (and each restart).
type Generator func() ([]Card, error)

// ValidateCatalog reports whether faces holds at least pairs distinct entries.
func ValidateCatalog(faces []string, pairs int) error {
	if pairs < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidPairCount, pairs)
	}
	if n := len(distinct(faces)); n < pairs {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughFaces, n, pairs)
	}
	return nil
}

// NewDeck builds a shuffled deck from the first pairs distinct faces.
func NewDeck(faces []string, pairs int) ([]Card, error) {
	if err := ValidateCatalog(faces, pairs); err != nil {
		return nil, err
	}
	chosen := distinct(faces)[:pairs]

	layout := make([]string, 0, 2*pairs)
	layout = append(layout, chosen...)
	layout = append(layout, chosen...)
	rand.Shuffle(len(layout), func(i, j int) {
		layout[i], layout[j] = layout[j], layout[i]
	})
	return DeckFromFaces(layout), nil
}

// Shuffled validates the catalog once and returns a Generator that deals a new
// random deck on every call.
func Shuffled(faces []string, pairs int) (Generator, error) {
	if err := ValidateCatalog(faces, pairs); err != nil {
		return nil, err
	}
	catalog := append([]string(nil), faces...)
	return func() ([]Card, error) {
		return NewDeck(catalog, pairs)
	}, nil
}

// DeckFromFaces lays out cards in the given order, face-down, with IDs 0..n-1.
// Callers are responsible for pairing faces.
func DeckFromFaces(layout []string) []Card {
	deck := make([]Card, len(layout))
	for i, f := range layout {
		deck[i] = Card{ID: i, Face: f}
	}
	return deck
}

// distinct returns the trimmed, non-empty faces in first-seen order.
func distinct(faces []string) []string {
	seen := make(map[string]struct{}, len(faces))
	out := make([]string, 0, len(faces))
	for _, f := range faces {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
