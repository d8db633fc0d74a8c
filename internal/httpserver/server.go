// internal/httpserver/server.go
//
// HTTP server wiring for the Memorama backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/leaderboard", "/share.png", "/debug/faces".
//   - Round endpoints (optional auth): mounted under /rounds (see rounds.go).
//   - Auth + profile/stat endpoints when a database is configured (see auth.go).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - WebSocket streams are mounted outside the handler timeout.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorama/apps/go-server/internal/faces"
	"github.com/robalobadob/memorama/apps/go-server/internal/game"
	"github.com/robalobadob/memorama/apps/go-server/internal/leaderboard"
)

// Options configures a Server. Ledger, Catalog and Pairs are required.
type Options struct {
	Ledger    *leaderboard.Ledger
	Catalog   *faces.Catalog
	Pairs     int
	Generator game.Generator // overrides the catalog's shuffling generator (tests, fixed layouts)
	DB        *sql.DB        // enables accounts when non-nil

	Timing         game.Timing
	Clock          clockwork.Clock
	SessionTimeout time.Duration

	ClientOrigin string
	PublicURL    string

	JWTSecret     string
	TokenTTL      time.Duration
	CookieName    string
	SecureCookies bool
}

// Server bundles router, round registry, ledger, and optional DB handle.
type Server struct {
	r      *chi.Mux
	opts   Options
	gen    game.Generator
	ledger *leaderboard.Ledger
	db     *sql.DB

	ctx    context.Context // parent of every session loop
	cancel context.CancelFunc

	mu     sync.Mutex
	rounds map[string]*roundEntry
}

// New validates opts, constructs a Server, installs middleware, and registers routes.
func New(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Catalog == nil {
		return nil, errors.New("httpserver: ledger and catalog are required")
	}
	gen := opts.Generator
	if gen == nil {
		var err error
		if gen, err = opts.Catalog.Generator(opts.Pairs); err != nil {
			return nil, err
		}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timing == (game.Timing{}) {
		opts.Timing = game.DefaultTiming()
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = time.Hour
	}
	if opts.ClientOrigin == "" {
		opts.ClientOrigin = "http://localhost:5173"
	}
	if opts.CookieName == "" {
		opts.CookieName = "memorama_token"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 14 * 24 * time.Hour
	}
	if opts.JWTSecret == "" {
		opts.JWTSecret = "dev_secret_change_me"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		r:      chi.NewRouter(),
		opts:   opts,
		gen:    gen,
		ledger: opts.Ledger,
		db:     opts.DB,
		ctx:    ctx,
		cancel: cancel,
		rounds: make(map[string]*roundEntry),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{opts.ClientOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler)

	// Streams are long-lived; everything else is bounded.
	s.r.Get("/rounds/{id}/ws", s.handleStream)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"memorama-go","endpoints":["/health","POST /rounds","/rounds/{id}","/leaderboard","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/share.png", s.handleShareQR)

		// Debug: catalog size
		r.Get("/debug/faces", func(w http.ResponseWriter, r *http.Request) {
			n, back := s.opts.Catalog.Stats()
			_ = json.NewEncoder(w).Encode(map[string]any{"faces": n, "back": back, "pairs": s.opts.Pairs})
		})

		// Rounds: OPTIONAL AUTH (guests can play; accounts get their name on the board)
		s.mountRounds(r.With(s.withOptionalAuth()))

		if s.db != nil {
			s.mountAuthRoutes(r)
		}
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})

	return s, nil
}

// Start serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.reapIdle(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() { errs <- srv.ListenAndServe() }()

	select {
	case err := <-errs:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops every round session.
func (s *Server) Close() { s.cancel() }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- leaderboard ---------------------------------

type leaderboardRes struct {
	Top []game.Score `json:"top"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(leaderboardRes{Top: s.ledger.Top()})
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// writeError writes {"error": code} with the given status.
func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

func logRequestErr(r *http.Request, err error, msg string) {
	log.Warn().Err(err).Str("request_id", chimw.GetReqID(r.Context())).Msg(msg)
}
