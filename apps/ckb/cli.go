package ckb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/pkg/errors"
)

// CommandError is returned when a tool ran to completion but exited with a
// failure, carrying whatever the tool wrote to stderr.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Toolbox wraps the toolbox binary which describes transactions, computes
// signing digests and builds transfers.
type Toolbox struct {
	Bin string
}

func (t *Toolbox) Description(ctx context.Context, network, file string) (string, error) {
	args := []string{"sandbox"}
	if network != NetworkMainnet {
		args = append(args, "-t")
	}
	args = append(args, "-p", file)
	return runCommand(ctx, t.Bin, args...)
}

func (t *Toolbox) Digest(ctx context.Context, address, file string) (string, error) {
	out, err := runCommand(ctx, t.Bin, "tx", "get-digest", "--format", "ckb-cli", "-a", address, "-t", file)
	return strings.TrimSpace(out), err
}

func (t *Toolbox) Transfer(ctx context.Context, from, to, value, fee, file string) error {
	_, err := runCommand(ctx, t.Bin, "push", "transfer", "--format", "ckb-cli",
		"--from", from, "--to", to, "-v", value, "-f", fee, "-F", file, ".")
	return err
}

// CkbCli wraps ckb-cli for transaction submission.
type CkbCli struct {
	Bin string
	RPC string
}

func (c *CkbCli) SendTransaction(ctx context.Context, file string) (string, error) {
	var args []string
	if c.RPC != "" {
		args = append(args, "--url", c.RPC)
	}
	args = append(args, "tx", "send", "--skip-check", "--local-only", "--tx-file", file)
	return runCommand(ctx, c.Bin, args...)
}

func runCommand(ctx context.Context, bin string, args ...string) (string, error) {
	line := bin + " " + strings.Join(args, " ")
	logger.Verbosef("runCommand(%s)", line)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 3 * time.Second
	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("runCommand(%s) => %v", line, ctx.Err())
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return stdout.String(), &CommandError{
			Command:  line,
			ExitCode: ee.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	if err != nil {
		return "", fmt.Errorf("runCommand(%s) => %v", line, err)
	}
	if stdout.Len() == 0 {
		logger.Printf("runCommand(%s) => empty stdout", line)
	}
	return stdout.String(), nil
}
