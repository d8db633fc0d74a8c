package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	clientOrigin   string
	cookieName     string
	db             string
	faces          string
	jwtSecret      string
	logLevel       string
	matchDelay     time.Duration
	mismatchDelay  time.Duration
	pairs          int
	port           int
	publicURL      string
	secureCookies  bool
	sessionTimeout time.Duration
	store          string
	tick           time.Duration
	tokenTTL       time.Duration
}

const devSecret = "dev_secret_change_me"

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.store != "sqlite" && c.store != "memory" {
		return fmt.Errorf("invalid store %q (must be sqlite or memory)", c.store)
	}
	if c.store == "sqlite" && c.db == "" {
		return errors.New("--db is required when --store=sqlite")
	}
	if c.pairs < 1 {
		return fmt.Errorf("invalid pairs (must be at least 1): %d", c.pairs)
	}
	if c.tick <= 0 {
		return fmt.Errorf("invalid tick (must be positive): %s", c.tick)
	}
	if c.matchDelay < 0 || c.mismatchDelay < 0 {
		return errors.New("match and mismatch delays cannot be negative")
	}
	if c.sessionTimeout < time.Second {
		return fmt.Errorf("invalid session timeout (must be at least 1s): %s", c.sessionTimeout)
	}
	if _, err := zerolog.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.logLevel)
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

// accounts reports whether the server has a database for player accounts.
func (c *Config) accounts() bool {
	return c.store == "sqlite"
}

func setupLogging(level string) {
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MEMORAMA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:     "memorama",
		Short:   "Memory-matching card game server.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			setupLogging(cfg.logLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MEMORAMA_BIND)")
	fs.StringVar(&cfg.clientOrigin, "client-origin", "http://localhost:5173", "allowed CORS origin for the web client (env: MEMORAMA_CLIENT_ORIGIN)")
	fs.StringVar(&cfg.cookieName, "cookie-name", "memorama_token", "name of the auth cookie (env: MEMORAMA_COOKIE_NAME)")
	fs.StringVar(&cfg.db, "db", "./data/memorama.db", "path to the sqlite database (env: MEMORAMA_DB)")
	fs.StringVar(&cfg.faces, "faces", "", "path to a YAML face catalog; empty uses the built-in catalog (env: MEMORAMA_FACES)")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", devSecret, "secret used to sign auth tokens (env: MEMORAMA_JWT_SECRET)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error (env: MEMORAMA_LOG_LEVEL)")
	fs.DurationVar(&cfg.matchDelay, "match-delay", 500*time.Millisecond, "time a matched pair is shown before play continues (env: MEMORAMA_MATCH_DELAY)")
	fs.DurationVar(&cfg.mismatchDelay, "mismatch-delay", time.Second, "time a mismatched pair is shown before flipping back (env: MEMORAMA_MISMATCH_DELAY)")
	fs.IntVar(&cfg.pairs, "pairs", 8, "number of pairs per deck (env: MEMORAMA_PAIRS)")
	fs.IntVarP(&cfg.port, "port", "p", 5175, "port to listen on (env: MEMORAMA_PORT)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "URL encoded in the share QR code; derived from the request when empty (env: MEMORAMA_PUBLIC_URL)")
	fs.BoolVar(&cfg.secureCookies, "secure-cookies", false, "mark auth cookies Secure (env: MEMORAMA_SECURE_COOKIES)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rounds are ended (env: MEMORAMA_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.store, "store", "sqlite", "leaderboard storage: sqlite or memory (env: MEMORAMA_STORE)")
	fs.DurationVar(&cfg.tick, "tick", time.Second, "elapsed-time granularity (env: MEMORAMA_TICK)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 14*24*time.Hour, "lifetime of auth tokens (env: MEMORAMA_TOKEN_TTL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.AddCommand(newLeaderboardCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("memorama v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func newLeaderboardCmd(cfg *Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the stored leaderboard and exit.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printLeaderboard(cmd.Context(), cfg, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the board as JSON")
	return cmd
}
