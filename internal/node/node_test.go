package node

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/telectl/internal/config"
	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/frame"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/router"
	"github.com/danmuck/telectl/internal/sinks"
	"github.com/danmuck/telectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestBoardWritesLocalSinksWithoutLink(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	sd := filepath.Join(dir, "sd.bin")
	cfg, err := config.Decode(fmt.Sprintf(`
name = "bench-board"
[http]
addr = ""
[[endpoints]]
name = "SD_CARD"
sink = "file"
path = %q
[[endpoints]]
name = "RADIO"
sink = "none"
`, sd))
	require.NoError(t, err)

	n, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, "board", n.Kind())

	require.NoError(t, router.LogValues(n.Router(), schema.GPSData, float32(1), 2, 3))
	require.NoError(t, n.Router().Log(schema.SystemStatus, make([]byte, 8)))
	require.Len(t, n.Recent(schema.SDCard), 2)
	require.Len(t, n.Recent(schema.Radio), 1)
	require.NoError(t, n.Close())

	var types []schema.DataType
	require.NoError(t, sinks.ReadFile(sd, func(_ frame.Header, p *protocol.Packet) error {
		types = append(types, p.MessageType.Type)
		return nil
	}))
	require.Equal(t, []schema.DataType{schema.GPSData, schema.SystemStatus}, types)

	st := n.Status()
	require.Equal(t, uint64(2), st.Router.Logged)
	require.Nil(t, st.Sender)
}

func TestStatsRoute(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default()
	cfg.Name = "stats-board"
	cfg.Endpoints = []config.EndpointConfig{{Name: "SD_CARD", Sink: "none"}, {Name: "RADIO"}}
	n, err := Build(cfg)
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.Router().Log(schema.BatteryStatus, make([]byte, 8)))

	rr := httptest.NewRecorder()
	n.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"logged":1`)
	require.Contains(t, rr.Body.String(), `"transmit_policy":"non_local"`)
}

func TestBoardToGroundOverLink(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	groundCfg := config.Default()
	groundCfg.Name = "ground"
	groundCfg.HTTP.Addr = ""
	groundCfg.Transport.Listen = "127.0.0.1:0"
	groundCfg.Endpoints = []config.EndpointConfig{
		{Name: "RADIO", Sink: "sqlite", Path: filepath.Join(dir, "ground.sqlite3")},
		{Name: "RADIO", Sink: "jsonl", Path: filepath.Join(dir, "ground.jsonl")},
	}
	ground, err := Build(groundCfg)
	require.NoError(t, err)
	defer ground.Close()
	require.Equal(t, "ground", ground.Kind())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ground.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	require.Eventually(t, func() bool { return ground.LinkAddr() != nil }, 5*time.Second, 10*time.Millisecond)

	boardCfg := config.Default()
	boardCfg.Name = "board"
	boardCfg.HTTP.Addr = ""
	boardCfg.Transport.Addr = ground.LinkAddr().String()
	boardCfg.Endpoints = []config.EndpointConfig{{Name: "SD_CARD", Sink: "none"}}
	board, err := Build(boardCfg)
	require.NoError(t, err)
	defer board.Close()

	for i := range 3 {
		require.NoError(t, router.LogValues(board.Router(), schema.BatteryStatus, float32(12), float32(i)))
	}
	require.Eventually(t, func() bool { return ground.Router().Stats().Received == 3 }, 5*time.Second, 10*time.Millisecond)

	recs, err := ground.archive.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Len(t, ground.Recent(schema.Radio), 3)
	require.Equal(t, uint64(3), board.Status().Sender.Frames)
}
