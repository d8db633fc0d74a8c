// internal/httpserver/rounds.go
//
// HTTP routes for playing rounds.
// Exposes endpoints under /rounds:
//   - POST /rounds               → create a round session (waits for start)
//   - GET  /rounds/{id}          → current snapshot
//   - POST /rounds/{id}/start    → start the round (clock begins)
//   - POST /rounds/{id}/select   → pick a card by id
//   - POST /rounds/{id}/restart  → deal a new deck
//   - GET  /rounds/{id}/ws       → live updates (see ws.go)
//
// Each round runs in its own game.Session. Sessions are held in memory and
// reaped after the configured idle timeout. Rejected picks are not errors:
// they return 200 with the unchanged snapshot.

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorama/apps/go-server/internal/game"
)

// roundEntry is a registered session and the func that stops its loop.
type roundEntry struct {
	session *game.Session
	cancel  context.CancelFunc
}

// mountRounds registers all /rounds routes.
func (s *Server) mountRounds(r chi.Router) {
	r.Route("/rounds", func(r chi.Router) {
		r.Post("/", s.handleNewRound)
		r.Get("/{id}", s.handleSnapshot)
		r.Post("/{id}/start", s.handleStart)
		r.Post("/{id}/select", s.handleSelect)
		r.Post("/{id}/restart", s.handleRestart)
	})
}

// ----------------------------- views ---------------------------------------

// cardView hides the face of cards that are face-down.
type cardView struct {
	ID      int    `json:"id"`
	Face    string `json:"face,omitempty"`
	Flipped bool   `json:"flipped"`
	Matched bool   `json:"matched"`
}

type snapshotView struct {
	Deck           []cardView   `json:"deck"`
	SelectionCount int          `json:"selectionCount"`
	Status         game.Status  `json:"status"`
	Attempts       int          `json:"attempts"`
	ElapsedSeconds int          `json:"elapsedSeconds"`
	PlayerName     string       `json:"playerName,omitempty"`
	Back           string       `json:"back"`
	Leaderboard    []game.Score `json:"leaderboard"`
}

func (s *Server) view(snap game.Snapshot) snapshotView {
	deck := make([]cardView, len(snap.Deck))
	for i, c := range snap.Deck {
		deck[i] = cardView{ID: c.ID, Flipped: c.Flipped, Matched: c.Matched}
		if c.Flipped || c.Matched {
			deck[i].Face = c.Face
		}
	}
	_, back := s.opts.Catalog.Stats()
	return snapshotView{
		Deck:           deck,
		SelectionCount: snap.SelectionCount,
		Status:         snap.Status,
		Attempts:       snap.Attempts,
		ElapsedSeconds: snap.ElapsedSeconds,
		PlayerName:     snap.PlayerName,
		Back:           back,
		Leaderboard:    snap.Leaderboard,
	}
}

// ----------------------------- registry ------------------------------------

// newRound builds a session, starts its loop, and registers it.
func (s *Server) newRound(player string, owner *authUser) (*game.Session, error) {
	round, err := game.NewRound(s.gen, player)
	if err != nil {
		return nil, err
	}
	var rec game.Recorder = s.ledger
	if owner != nil && s.db != nil {
		rec = &accountRecorder{Recorder: s.ledger, srv: s, userID: owner.ID}
	}
	sess := game.NewSession(round, rec,
		game.WithClock(s.opts.Clock),
		game.WithTiming(s.opts.Timing),
	)

	ctx, cancel := context.WithCancel(s.ctx)
	go sess.Run(ctx)

	s.mu.Lock()
	s.rounds[sess.ID] = &roundEntry{session: sess, cancel: cancel}
	s.mu.Unlock()

	log.Info().Str("round_id", sess.ID).Str("player", player).Msg("round created")
	return sess, nil
}

func (s *Server) lookup(id string) (*game.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rounds[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// reapIdle ends sessions with no intents for SessionTimeout.
func (s *Server) reapIdle(ctx context.Context) {
	ticker := s.opts.Clock.NewTicker(reapPeriod(s.opts.SessionTimeout))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.reapOnce()
		}
	}
}

// reapPeriod is a quarter of the idle timeout, never below one second.
func reapPeriod(timeout time.Duration) time.Duration {
	return max(timeout/4, time.Second)
}

func (s *Server) reapOnce() int {
	now := s.opts.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.rounds {
		if now.Sub(e.session.LastActive()) < s.opts.SessionTimeout {
			continue
		}
		e.cancel()
		delete(s.rounds, id)
		n++
		log.Info().Str("round_id", id).Msg("round reaped after idle timeout")
	}
	return n
}

// ----------------------------- handlers ------------------------------------

type newRoundReq struct {
	PlayerName string `json:"playerName"`
}

type roundRes struct {
	RoundID  string       `json:"roundId"`
	Snapshot snapshotView `json:"snapshot"`
}

// handleNewRound creates a session. Authenticated players always use their
// username; guests may supply a display name.
func (s *Server) handleNewRound(w http.ResponseWriter, r *http.Request) {
	var req newRoundReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	player := normalizePlayerName(req.PlayerName)
	if me != nil {
		player = me.Username
	}

	sess, err := s.newRound(player, me)
	if err != nil {
		logRequestErr(r, err, "create round")
		writeError(w, http.StatusInternalServerError, "create_failed")
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot_failed")
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(roundRes{RoundID: sess.ID, Snapshot: s.view(snap)})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.Snapshot(ctx)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.Start(ctx)
	})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.Restart(ctx)
	})
}

type selectReq struct {
	CardID *int `json:"cardId"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardID == nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	s.withSession(w, r, func(ctx context.Context, sess *game.Session) (game.Snapshot, error) {
		return sess.Select(ctx, *req.CardID)
	})
}

// withSession resolves {id}, runs fn, and writes the snapshot or an error.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(context.Context, *game.Session) (game.Snapshot, error)) {
	id := chi.URLParam(r, "id")
	sess, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "round_not_found")
		return
	}
	snap, err := fn(r.Context(), sess)
	switch {
	case errors.Is(err, game.ErrUnknownCard):
		writeError(w, http.StatusBadRequest, "unknown_card")
		return
	case errors.Is(err, game.ErrSessionClosed):
		writeError(w, http.StatusGone, "round_closed")
		return
	case err != nil:
		logRequestErr(r, err, "round intent")
		writeError(w, http.StatusInternalServerError, "intent_failed")
		return
	}
	_ = json.NewEncoder(w).Encode(roundRes{RoundID: id, Snapshot: s.view(snap)})
}

// normalizePlayerName trims and caps guest display names.
func normalizePlayerName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > 24 {
		name = string(r[:24])
	}
	return name
}

