package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner feeds code on stdin to a local interpreter such as
// "node" or "python3 -". Each run gets a scratch working directory and a
// minimal environment.
type CommandRunner struct {
	Command   []string
	Timeout   time.Duration
	MaxOutput int
}

func (r *CommandRunner) Run(ctx context.Context, code string) (Result, error) {
	if len(r.Command) == 0 {
		return Result{}, fmt.Errorf("command runner has no command")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "codecollab-run-*")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	out := &cappedBuffer{limit: r.MaxOutput}
	cmd := exec.CommandContext(ctx, r.Command[0], r.Command[1:]...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(code)
	cmd.Stdout = out
	cmd.Stderr = out
	// Only PATH and HOME leak into the child; server secrets stay out
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
	}
	cmd.WaitDelay = time.Second
	isolateProcessGroup(cmd)

	err = cmd.Run()
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{Output: out.String()}, ErrTimeout
		}
		return Result{Output: out.String()}, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Output: out.String(), ExitCode: exitErr.ExitCode()}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("run %s: %w", r.Command[0], err)
	}
	return Result{Output: out.String()}, nil
}

// cappedBuffer keeps the first limit bytes and silently drops the rest so
// a chatty program cannot exhaust server memory
type cappedBuffer struct {
	buf       []byte
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	limit := b.limit
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	room := limit - len(b.buf)
	if room <= 0 {
		if len(p) > 0 {
			b.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, cutAtRune(p, room)...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "\n[output truncated]"
	}
	return string(b.buf)
}
