// Package runner executes submitted code outside the session coordinator.
//
// The coordinator only depends on the Runner contract: one code string in,
// captured output or an error out, always within a bounded time. How the
// code is actually executed (a local interpreter, a remote sandbox) is a
// deployment choice made in Config.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrDisabled = errors.New("code execution is disabled")
	ErrTimeout  = errors.New("code execution timed out")
)

const (
	KindCommand  = "command"
	KindRemote   = "remote"
	KindDisabled = "disabled"

	DefaultTimeout   = 10 * time.Second
	DefaultMaxOutput = 64 * 1024
)

// Result is the captured outcome of one run. A non-zero ExitCode is still a
// successful run from the gateway's point of view.
type Result struct {
	Output   string
	ExitCode int
}

type Runner interface {
	Run(ctx context.Context, code string) (Result, error)
}

type Config struct {
	Kind      string
	Command   []string
	URL       string
	Timeout   time.Duration
	MaxOutput int
}

// New builds the Runner described by cfg
func New(cfg Config) (Runner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = DefaultMaxOutput
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindCommand:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("command runner needs a command")
		}
		return &CommandRunner{
			Command:   cfg.Command,
			Timeout:   cfg.Timeout,
			MaxOutput: cfg.MaxOutput,
		}, nil
	case KindRemote:
		if cfg.URL == "" {
			return nil, fmt.Errorf("remote runner needs a URL")
		}
		return NewRemoteRunner(cfg.URL, cfg.Timeout, cfg.MaxOutput), nil
	case KindDisabled, "none", "off":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown runner kind %q", cfg.Kind)
	}
}

// cutAtRune shortens s to at most n bytes without splitting a UTF-8 sequence
func cutAtRune[T string | []byte](s T, n int) T {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Disabled refuses every run
type Disabled struct{}

func (Disabled) Run(context.Context, string) (Result, error) {
	return Result{}, ErrDisabled
}
