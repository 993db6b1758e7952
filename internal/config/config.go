package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/manpreetbhatti/codecollab/internal/runner"
)

type Config struct {
	Addr          string
	AllowedOrigin string

	VersionStore      string
	MaxVersions       int
	RoomIdleTTL       time.Duration
	RetentionInterval time.Duration

	Runner       string
	RunCommand   []string
	RunURL       string
	RunTimeout   time.Duration
	RunMaxOutput int
	RunRate      float64
	RunBurst     int
}

func Default() Config {
	return Config{
		Addr:              ":8080",
		AllowedOrigin:     "*",
		VersionStore:      "memory://",
		RetentionInterval: 5 * time.Minute,
		Runner:            runner.KindCommand,
		RunCommand:        []string{"node"},
		RunTimeout:        runner.DefaultTimeout,
		RunMaxOutput:      runner.DefaultMaxOutput,
		RunRate:           1,
		RunBurst:          5,
	}
}

// Load reads configuration from the process environment
func Load() Config {
	return FromEnv(os.Getenv)
}

// FromEnv reads configuration through getenv, falling back to defaults for
// anything unset or unparsable
func FromEnv(getenv func(string) string) Config {
	cfg := Default()
	env := envReader{getenv: getenv}

	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	cfg.Addr = env.stringOr("CODECOLLAB_ADDR", cfg.Addr)
	cfg.AllowedOrigin = env.stringOr("CODECOLLAB_ALLOWED_ORIGIN", cfg.AllowedOrigin)

	cfg.VersionStore = env.stringOr("CODECOLLAB_VERSION_STORE", cfg.VersionStore)
	cfg.MaxVersions = env.intOr("CODECOLLAB_MAX_VERSIONS", cfg.MaxVersions)
	cfg.RoomIdleTTL = env.durationOr("CODECOLLAB_ROOM_IDLE_TTL", cfg.RoomIdleTTL)
	cfg.RetentionInterval = env.durationOr("CODECOLLAB_RETENTION_INTERVAL", cfg.RetentionInterval)

	cfg.Runner = env.stringOr("CODECOLLAB_RUNNER", cfg.Runner)
	if raw := strings.TrimSpace(getenv("CODECOLLAB_RUN_COMMAND")); raw != "" {
		cfg.RunCommand = strings.Fields(raw)
	}
	cfg.RunURL = env.stringOr("CODECOLLAB_RUN_URL", cfg.RunURL)
	cfg.RunTimeout = env.durationOr("CODECOLLAB_RUN_TIMEOUT", cfg.RunTimeout)
	cfg.RunMaxOutput = env.intOr("CODECOLLAB_RUN_MAX_OUTPUT", cfg.RunMaxOutput)
	cfg.RunRate = env.floatOr("CODECOLLAB_RUN_RATE", cfg.RunRate)
	cfg.RunBurst = env.intOr("CODECOLLAB_RUN_BURST", cfg.RunBurst)

	return cfg
}

// BindFlags registers command-line overrides for every setting. Call it
// after loading the environment so the env values become flag defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.AllowedOrigin, "allowed-origin", c.AllowedOrigin, "origin allowed for CORS and WebSocket upgrades (* for any)")
	fs.StringVar(&c.VersionStore, "version-store", c.VersionStore, "version history DSN (memory://, sqlite://path, postgres://..., redis://...)")
	fs.IntVar(&c.MaxVersions, "max-versions", c.MaxVersions, "keep at most this many versions per room (0 = unbounded)")
	fs.DurationVar(&c.RoomIdleTTL, "room-idle-ttl", c.RoomIdleTTL, "evict empty rooms idle this long (0 = never)")
	fs.DurationVar(&c.RetentionInterval, "retention-interval", c.RetentionInterval, "how often retention runs")
	fs.StringVar(&c.Runner, "runner", c.Runner, "code runner: command, remote or disabled")
	fs.StringSliceVar(&c.RunCommand, "run-command", c.RunCommand, "interpreter argv for the command runner; code is passed on stdin")
	fs.StringVar(&c.RunURL, "run-url", c.RunURL, "execution service URL for the remote runner")
	fs.DurationVar(&c.RunTimeout, "run-timeout", c.RunTimeout, "maximum time for one run")
	fs.IntVar(&c.RunMaxOutput, "run-max-output", c.RunMaxOutput, "maximum captured output bytes per run")
	fs.Float64Var(&c.RunRate, "run-rate", c.RunRate, "runs per second allowed per client IP")
	fs.IntVar(&c.RunBurst, "run-burst", c.RunBurst, "run burst allowed per client IP")
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	// Same kinds runner.New accepts; an empty kind means the command runner
	switch strings.ToLower(strings.TrimSpace(c.Runner)) {
	case "", runner.KindCommand:
		if len(c.RunCommand) == 0 {
			return fmt.Errorf("runner %q needs a run command", c.Runner)
		}
	case runner.KindRemote:
		if c.RunURL == "" {
			return fmt.Errorf("runner %q needs a run URL", c.Runner)
		}
	case runner.KindDisabled, "none", "off":
	default:
		return fmt.Errorf("unknown runner %q", c.Runner)
	}
	if c.MaxVersions < 0 {
		return fmt.Errorf("max versions must not be negative")
	}
	if c.RoomIdleTTL < 0 {
		return fmt.Errorf("room idle ttl must not be negative")
	}
	if c.RetentionEnabled() && c.RetentionInterval <= 0 {
		return fmt.Errorf("retention interval must be positive")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("run timeout must be positive")
	}
	if c.RunRate <= 0 || c.RunBurst <= 0 {
		return fmt.Errorf("run rate and burst must be positive")
	}
	return nil
}

func (c Config) RetentionEnabled() bool {
	return c.MaxVersions > 0 || c.RoomIdleTTL > 0
}

func (c Config) RunnerConfig() runner.Config {
	return runner.Config{
		Kind:      c.Runner,
		Command:   c.RunCommand,
		URL:       c.RunURL,
		Timeout:   c.RunTimeout,
		MaxOutput: c.RunMaxOutput,
	}
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) stringOr(name, fallback string) string {
	if raw := strings.TrimSpace(e.getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func (e envReader) intOr(name string, fallback int) int {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func (e envReader) floatOr(name string, fallback float64) float64 {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %g", name, raw, fallback)
		return fallback
	}
	return value
}

func (e envReader) durationOr(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback)
		return fallback
	}
	return value
}
