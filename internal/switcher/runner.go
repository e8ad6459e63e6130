package switcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command line and returns its standard output.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// ShellRunner runs commands through the platform command interpreter.
type ShellRunner struct {
	Windows bool
	// Timeout bounds every command, zero means no limit.
	Timeout time.Duration
}

func (r ShellRunner) Run(ctx context.Context, command string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := shellCommand(ctx, r.Windows, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the shell may keep the pipes open after it was killed
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), fmt.Errorf("%s: %w", command, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.String(), fmt.Errorf("%s: %w: %s", command, err, msg)
		}
		return stdout.String(), fmt.Errorf("%s: %w", command, err)
	}
	return stdout.String(), nil
}

func shellCommand(ctx context.Context, windows bool, command string) *exec.Cmd {
	if windows {
		cmd := exec.CommandContext(ctx, "cmd.exe")
		setWindowsCommandLine(cmd, command)
		return cmd
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}
