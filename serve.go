// serve.go
//
// Wires configuration into the running server.
// Responsibilities:
//   - Load and validate the face catalog (a bad pair count aborts startup).
//   - Open the leaderboard store (SQLite + migrations, or in-memory).
//   - Load the persisted board, start the HTTP server, shut down on signal.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorama/apps/go-server/assets"
	"github.com/robalobadob/memorama/apps/go-server/internal/faces"
	"github.com/robalobadob/memorama/apps/go-server/internal/game"
	"github.com/robalobadob/memorama/apps/go-server/internal/httpserver"
	"github.com/robalobadob/memorama/apps/go-server/internal/leaderboard"
	"github.com/robalobadob/memorama/apps/go-server/internal/store"
)

func serve(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := faces.Load(cfg.faces)
	if err != nil {
		return err
	}
	if err := catalog.Validate(cfg.pairs); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ledger, db, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if cfg.accounts() && cfg.jwtSecret == devSecret {
		log.Warn().Msg("using the development JWT secret; set MEMORAMA_JWT_SECRET")
	}

	srv, err := httpserver.New(httpserver.Options{
		Ledger:  ledger,
		Catalog: catalog,
		Pairs:   cfg.pairs,
		DB:      db,
		Timing: game.Timing{
			Tick:          cfg.tick,
			MatchDelay:    cfg.matchDelay,
			MismatchDelay: cfg.mismatchDelay,
		},
		SessionTimeout: cfg.sessionTimeout,
		ClientOrigin:   cfg.clientOrigin,
		PublicURL:      cfg.publicURL,
		JWTSecret:      cfg.jwtSecret,
		TokenTTL:       cfg.tokenTTL,
		CookieName:     cfg.cookieName,
		SecureCookies:  cfg.secureCookies,
	})
	if err != nil {
		return err
	}

	n, back := catalog.Stats()
	log.Info().
		Str("addr", cfg.addr()).
		Str("store", cfg.store).
		Int("pairs", cfg.pairs).
		Int("faces", n).
		Str("back", back).
		Bool("accounts", db != nil).
		Msg("starting memorama")

	return srv.Start(ctx, cfg.addr())
}

// openLedger builds the ledger on the configured store and loads the
// persisted board. The returned *sql.DB is nil for the memory store.
func openLedger(ctx context.Context, cfg *Config) (*leaderboard.Ledger, *sql.DB, error) {
	if cfg.store == "memory" {
		l := leaderboard.New(store.NewMemoryStore(), leaderboard.DefaultKey, leaderboard.DefaultCapacity)
		l.Load(ctx)
		return l, nil, nil
	}

	db, err := store.OpenSQLite(cfg.db)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(db, assets.Migrations()); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	l := leaderboard.New(store.NewSQLiteStore(db), leaderboard.DefaultKey, leaderboard.DefaultCapacity)
	board := l.Load(ctx)
	log.Info().Int("entries", len(board)).Msg("leaderboard loaded")
	return l, db, nil
}

func printLeaderboard(ctx context.Context, cfg *Config, out io.Writer, asJSON bool) error {
	ledger, db, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	board := ledger.Top()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(board)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPLAYER\tTIME\tATTEMPTS")
	for i, s := range board {
		name := s.PlayerName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%ds\t%d\n", i+1, name, s.ElapsedSeconds, s.Attempts)
	}
	return tw.Flush()
}
