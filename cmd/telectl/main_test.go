package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/telectl/internal/config"
	"github.com/danmuck/telectl/internal/node"
	"github.com/danmuck/telectl/internal/testutil/testlog"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestConfigInitAndShow(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "board.toml")
	require.Contains(t, run(t, "config", "init", "board", path), "wrote board config")
	shown := run(t, "config", "show", path)
	require.Contains(t, shown, "flight-board")
	require.Contains(t, shown, "SD_CARD")
}

func TestEmitThenReplay(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	sd := filepath.Join(dir, "sd.bin")
	cfg := config.Default()
	cfg.Name = "replay-board"
	cfg.HTTP.Addr = ""
	cfg.Endpoints = []config.EndpointConfig{
		{Name: "SD_CARD", Sink: "file", Path: sd},
		{Name: "RADIO", Sink: "none"},
	}
	n, err := node.Build(cfg)
	require.NoError(t, err)
	sim := newSimulator(1)
	for range 2 {
		require.NoError(t, sim.step(n.Router()))
	}
	require.NoError(t, n.Close())

	out := run(t, "replay", sd)
	require.Contains(t, out, "8 packets")
	require.Contains(t, out, "Type: GPS_DATA, Size: 12, Endpoints: [SD_CARD, RADIO]")
	require.NotContains(t, out, "INVALID")
	require.Equal(t, 2, strings.Count(out, "Type: SYSTEM_STATUS"))

	hex := run(t, "replay", "--format", "hex", sd)
	require.Contains(t, hex, "Timestamp: ")
	require.Contains(t, hex, ", Payload (hex): 0x")
	require.NotContains(t, hex, "Data: ")
}
