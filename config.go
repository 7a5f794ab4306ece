package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/logJustin/the-game-table/wheel"
)

type Config struct {
	bind           string
	config         string
	database       string
	frameInterval  time.Duration
	playerTimeout  time.Duration
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	// wheel tuning
	minTurns     float64
	maxTurns     float64
	minSpin      time.Duration
	maxSpin      time.Duration
	pointerAngle float64
	easeExponent float64
}

func (c *Config) validate() error {
	switch {
	case (c.tlsCert == "") != (c.tlsKey == ""):
		return errors.New("both --tls-cert and --tls-key must be provided together")
	case c.port < 1 || c.port > 65535:
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	case strings.TrimSpace(c.database) == "":
		return errors.New("--database must not be empty")
	case c.frameInterval <= 0:
		return fmt.Errorf("invalid frame interval (must be positive): %s", c.frameInterval)
	case c.minTurns < 1:
		return fmt.Errorf("invalid minimum turns (must be at least 1): %v", c.minTurns)
	case c.maxTurns < c.minTurns:
		return fmt.Errorf("invalid maximum turns (must be at least --min-turns): %v", c.maxTurns)
	case c.minSpin <= 0:
		return fmt.Errorf("invalid minimum spin time (must be positive): %s", c.minSpin)
	case c.maxSpin < c.minSpin:
		return fmt.Errorf("invalid maximum spin time (must be at least --min-spin): %s", c.maxSpin)
	case c.pointerAngle < 0 || c.pointerAngle >= 360:
		return fmt.Errorf("invalid pointer angle (must be between 0 inclusive and 360 exclusive): %v", c.pointerAngle)
	case c.easeExponent < 1:
		return fmt.Errorf("invalid ease exponent (must be at least 1): %v", c.easeExponent)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// wheelOptions returns the tuning knobs for a new table's wheel. The caller
// supplies the clock, scheduler and callbacks.
func (c *Config) wheelOptions() wheel.Options {
	opts := wheel.NewOptions()
	opts.MinTurns = c.minTurns
	opts.MaxTurns = c.maxTurns
	opts.MinDuration = c.minSpin
	opts.MaxDuration = c.maxSpin
	opts.PointerAngle = c.pointerAngle
	opts.EaseExponent = c.easeExponent
	return opts
}

// bindEnv fills every flag the user did not set on the command line from
// GAMETABLE_* environment variables, then from the config file, if any.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet, cfg *Config) error {
	_ = v.BindEnv("config")
	if cfg.config == "" {
		cfg.config = v.GetString("config")
	}
	if cfg.config != "" {
		v.SetConfigFile(cfg.config)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfg.config, err)
		}
	}

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
			}
		}
	})

	return errors.Join(errs...)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GAMETABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gametable",
		Short:         "Curate a shared board game library, spin a wheel to pick one, and log the result.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindEnv(v, cmd.Flags(), cfg); err != nil {
				return err
			}
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GAMETABLE_BIND)")
	fs.StringVarP(&cfg.config, "config", "c", "", "path to a config file (toml, yaml or json) (env: GAMETABLE_CONFIG)")
	fs.StringVarP(&cfg.database, "database", "d", "gametable.db", "path to the sqlite database (env: GAMETABLE_DATABASE)")
	fs.Float64Var(&cfg.easeExponent, "ease-exponent", wheel.DefaultEaseExponent, "exponent of the ease-out curve a spin slows down on (env: GAMETABLE_EASE_EXPONENT)")
	fs.DurationVar(&cfg.frameInterval, "frame-interval", 33*time.Millisecond, "time between wheel frames sent to players (env: GAMETABLE_FRAME_INTERVAL)")
	fs.DurationVar(&cfg.maxSpin, "max-spin", wheel.DefaultMaxDuration, "longest a spin may last (env: GAMETABLE_MAX_SPIN)")
	fs.Float64Var(&cfg.maxTurns, "max-turns", wheel.DefaultMaxTurns, "most full turns a spin makes (env: GAMETABLE_MAX_TURNS)")
	fs.DurationVar(&cfg.minSpin, "min-spin", wheel.DefaultMinDuration, "shortest a spin may last (env: GAMETABLE_MIN_SPIN)")
	fs.Float64Var(&cfg.minTurns, "min-turns", wheel.DefaultMinTurns, "fewest full turns a spin makes (env: GAMETABLE_MIN_TURNS)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before disconnected players are dropped (env: GAMETABLE_PLAYER_TIMEOUT)")
	fs.Float64Var(&cfg.pointerAngle, "pointer-angle", wheel.DefaultPointerAngle, "angle of the pointer in degrees, clockwise from 3 o'clock (env: GAMETABLE_POINTER_ANGLE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: GAMETABLE_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: GAMETABLE_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: GAMETABLE_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle tables are closed (env: GAMETABLE_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: GAMETABLE_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: GAMETABLE_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: GAMETABLE_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: GAMETABLE_VERSION)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("gametable v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
