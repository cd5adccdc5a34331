package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"kanoinit/internal/logging"
)

// Command is one external program invocation.
type Command struct {
	Binary    string
	Arguments []string
	// Stdin is fed to the process when non-empty.
	Stdin string
	// Interactive attaches the process to the terminal. There is no timeout
	// and no output is captured.
	Interactive bool
}

// String returns the command line for logs. Stdin is never included.
func (c Command) String() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// Result is what a finished command produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Killed   bool
}

// Executor runs commands. A non-zero exit is reported in Result, not as an
// error; errors mean the command could not be run at all.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// ErrNotAllowed is returned for binaries outside the executor's allow-list.
var ErrNotAllowed = errors.New("command not allowed")

// CommandError reports a command that ran and failed.
type CommandError struct {
	Command  Command
	ExitCode int
	Stderr   string
	Killed   bool
}

func (e *CommandError) Error() string {
	if e.Killed {
		return fmt.Sprintf("%s: killed", e.Command)
	}
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// DefaultAllowed is every binary the Linux collaborators invoke.
var DefaultAllowed = []string{
	"useradd", "userdel", "usermod", "groupadd", "chpasswd", "killall",
	"init", "update-rc.d", "service", "lightdm-set-defaults", "sudo",
}

// ExecutorConfig configures a CommandExecutor.
type ExecutorConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int64
	// Allowed binaries, matched by base name.
	Allowed []string
	// DryRun logs commands instead of running them.
	DryRun bool
}

// DefaultExecutorConfig returns the configuration used on devices.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:        60 * time.Second,
		MaxOutputBytes: 64 * 1024,
		Allowed:        DefaultAllowed,
	}
}

// CommandExecutor runs commands on the host with os/exec.
type CommandExecutor struct {
	config  ExecutorConfig
	allowed map[string]bool
}

// NewExecutor creates a CommandExecutor.
func NewExecutor(config ExecutorConfig) *CommandExecutor {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 64 * 1024
	}
	allowed := make(map[string]bool, len(config.Allowed))
	for _, b := range config.Allowed {
		allowed[b] = true
	}
	return &CommandExecutor{config: config, allowed: allowed}
}

// Validate checks cmd against the allow-list.
func (e *CommandExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if !e.allowed[filepath.Base(cmd.Binary)] {
		return fmt.Errorf("%w: %s", ErrNotAllowed, cmd.Binary)
	}
	return nil
}

// Execute runs cmd with the configured timeout.
func (e *CommandExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if err := e.Validate(cmd); err != nil {
		return nil, err
	}

	if e.config.DryRun {
		logging.System("dry-run: %s", cmd)
		return &Result{}, nil
	}
	logging.System("exec: %s", cmd)

	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if !cmd.Interactive {
		execCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
	}
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	if cmd.Interactive {
		execCmd.Stdin, execCmd.Stdout, execCmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	} else {
		if cmd.Stdin != "" {
			execCmd.Stdin = strings.NewReader(cmd.Stdin)
		}
		execCmd.Stdout = &limitedWriter{w: &stdout, max: e.config.MaxOutputBytes}
		execCmd.Stderr = &limitedWriter{w: &stderr, max: e.config.MaxOutputBytes}
	}

	start := time.Now()
	err := execCmd.Run()
	result := &Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case execCtx.Err() != nil:
			result.Killed = true
			result.ExitCode = -1
			logging.Get(logging.CategorySystem).Warn("command killed: %s: %v", cmd, execCtx.Err())
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, fmt.Errorf("running %s: %w", cmd.Binary, err)
		}
	}

	logging.Get(logging.CategorySystem).Debug("%s -> exit=%d in %s", cmd.Binary, result.ExitCode, result.Duration)
	return result, nil
}

// run executes cmd and turns a failed result into a *CommandError.
func run(ctx context.Context, ex Executor, cmd Command) error {
	res, err := ex.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if res.Killed || res.ExitCode != 0 {
		return &CommandError{Command: cmd, ExitCode: res.ExitCode, Stderr: res.Stderr, Killed: res.Killed}
	}
	return nil
}

// limitedWriter keeps the first max bytes and discards the rest.
type limitedWriter struct {
	w       io.Writer
	max     int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		return n, nil
	}
	if int64(n) > remaining {
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return n, err
}
