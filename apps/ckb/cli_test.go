package ckb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	out, err := runCommand(ctx, "sh", "-c", "echo hello")
	require.Nil(err)
	require.Equal("hello\n", out)

	_, err = runCommand(ctx, "sh", "-c", "echo rejected >&2; exit 3")
	var ce *CommandError
	require.True(errors.As(err, &ce))
	require.Equal(3, ce.ExitCode)
	require.Equal("rejected", ce.Stderr)

	_, err = runCommand(ctx, "/nonexistent/ckb-cli", "tx")
	require.NotNil(err)
	require.False(errors.As(err, &ce))

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = runCommand(tctx, "sh", "-c", "sleep 2")
	require.NotNil(err)
	require.False(errors.As(err, &ce))
}

func TestToolboxArguments(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	root, err := os.MkdirTemp("", "cosigner-ckb-test")
	require.Nil(err)
	defer os.RemoveAll(root)

	bin := filepath.Join(root, "echo-args")
	err = os.WriteFile(bin, []byte("#!/bin/sh\necho \"$@\"\n"), 0755)
	require.Nil(err)

	toolbox := &Toolbox{Bin: bin}
	out, err := toolbox.Description(ctx, NetworkTestnet, "/tmp/tx.json")
	require.Nil(err)
	require.Equal("sandbox -t -p /tmp/tx.json\n", out)
	out, err = toolbox.Description(ctx, NetworkMainnet, "/tmp/tx.json")
	require.Nil(err)
	require.Equal("sandbox -p /tmp/tx.json\n", out)

	digest, err := toolbox.Digest(ctx, "ckb1qq", "/tmp/tx.json")
	require.Nil(err)
	require.Equal("tx get-digest --format ckb-cli -a ckb1qq -t /tmp/tx.json", digest)

	cli := &CkbCli{Bin: bin, RPC: "http://127.0.0.1:8114"}
	out, err = cli.SendTransaction(ctx, "/tmp/tx.json")
	require.Nil(err)
	require.Equal("--url http://127.0.0.1:8114 tx send --skip-check --local-only --tx-file /tmp/tx.json\n", out)
}
