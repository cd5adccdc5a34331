package system

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"kanoinit/internal/logging"
)

//go:embed subshellrc
var subshellRC []byte

// RabbitHole creates ~name/rabbithole and runs name's bash with an init file
// that leaves the shell as soon as they cd into it. The directory is removed
// afterwards.
func (l *Linux) RabbitHole(ctx context.Context, name string) error {
	dir := filepath.Join(l.config.HomeRoot, name, "rabbithole")
	if !l.config.DryRun {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating rabbit hole: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				logging.Get(logging.CategorySystem).Warn("removing %s: %v", dir, err)
			}
		}()
	}

	rc, cleanup, err := l.subshellRC()
	if err != nil {
		return err
	}
	defer cleanup()

	logging.System("opening rabbit hole shell for %s", name)
	return run(ctx, l.exec, Command{
		Binary:      "sudo",
		Arguments:   []string{"-u", name, "-H", "bash", "--init-file", rc},
		Interactive: true,
	})
}

// subshellRC returns the init file path, writing the built-in one to a
// world-readable temp file when none is configured.
func (l *Linux) subshellRC() (string, func(), error) {
	if l.config.SubshellRC != "" {
		return l.config.SubshellRC, func() {}, nil
	}
	f, err := os.CreateTemp("", "kano-init-subshellrc-*")
	if err != nil {
		return "", nil, fmt.Errorf("writing subshell rc: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(subshellRC); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing subshell rc: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing subshell rc: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing subshell rc: %w", err)
	}
	return f.Name(), cleanup, nil
}
