// internal/httpserver/ws.go
//
// WebSocket stream for a round: GET /rounds/{id}/ws.
// The client receives the current snapshot first, then one message per
// game.Update. The stream is read-only; intents go through the JSON routes.

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorama/apps/go-server/internal/game"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// streamMessage is the wire shape of every frame.
type streamMessage struct {
	Type     string       `json:"type"`            // "snapshot" | "event"
	Event    *game.Event  `json:"event,omitempty"` // set for "event"
	Snapshot snapshotView `json:"snapshot"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == s.opts.ClientOrigin || sameHost(r, origin)
		},
	}
}

func sameHost(r *http.Request, origin string) bool {
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// handleStream upgrades the connection and relays session updates until
// either side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "round_not_found")
		return
	}

	// Subscribe before the first snapshot so no transition is missed.
	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusGone, "round_closed")
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("round_id", id).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	// Reader: only needed for control frames and to notice disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg streamMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	if err := write(streamMessage{Type: "snapshot", Snapshot: s.view(snap)}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case u, ok := <-updates:
			if !ok {
				code, reason := streamCloseFrame(sess.Done())
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, reason),
					time.Now().Add(writeWait))
				return
			}
			ev := u.Event
			if err := write(streamMessage{Type: "event", Event: &ev, Snapshot: s.view(u.Snapshot)}); err != nil {
				log.Debug().Err(err).Str("round_id", id).Msg("websocket write")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamCloseFrame picks the close code once updates stop: the round ended,
// or this observer fell behind and was dropped while the round goes on.
func streamCloseFrame(done <-chan struct{}) (int, string) {
	select {
	case <-done:
		return websocket.CloseGoingAway, "round ended"
	default:
		return websocket.CloseTryAgainLater, "fell behind; reconnect"
	}
}
