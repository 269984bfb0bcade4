package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	authTimeout    time.Duration
	authURL        string
	basePoints     int
	bind           string
	maxPlayers     int
	maxTimeBonus   int
	minPlayers     int
	port           int
	prefix         string
	profile        bool
	questionTime   time.Duration
	sessionTimeout time.Duration
	streakBonus    int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.authURL == "" {
		return errors.New("--auth-url must be provided")
	}
	if c.questionTime < time.Second {
		return fmt.Errorf("invalid question time limit (must be at least 1s): %s", c.questionTime)
	}
	if c.maxPlayers < 1 {
		return fmt.Errorf("invalid player capacity (must be at least 1): %d", c.maxPlayers)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("TRIVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "triviad",
		Short:         "A real-time multiplayer trivia session server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.DurationVar(&cfg.authTimeout, "auth-timeout", 5*time.Second, "timeout for authorization gateway calls (env: TRIVIA_AUTH_TIMEOUT)")
	fs.StringVar(&cfg.authURL, "auth-url", "http://localhost:5001", "base URL of the host authorization service (env: TRIVIA_AUTH_URL)")
	fs.IntVar(&cfg.basePoints, "base-points", 1000, "base points for a correct answer (env: TRIVIA_BASE_POINTS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: TRIVIA_BIND)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 12, "player capacity per session (env: TRIVIA_MAX_PLAYERS)")
	fs.IntVar(&cfg.maxTimeBonus, "max-time-bonus", 500, "maximum time bonus points per answer (env: TRIVIA_MAX_TIME_BONUS)")
	fs.IntVar(&cfg.minPlayers, "min-players", 1, "players required before a host may start a session (env: TRIVIA_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: TRIVIA_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: TRIVIA_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: TRIVIA_PROFILE)")
	fs.DurationVar(&cfg.questionTime, "question-time-limit", 20*time.Second, "answer window per question (env: TRIVIA_QUESTION_TIME_LIMIT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are reaped (env: TRIVIA_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.streakBonus, "streak-bonus", 100, "points per consecutive correct answer (env: TRIVIA_STREAK_BONUS)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: TRIVIA_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: TRIVIA_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: TRIVIA_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: TRIVIA_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("triviad v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
