package sinks

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/frame"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/testutil/testlog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func batteryPacket(t *testing.T, order binary.ByteOrder, ts uint64, volts, charge float32) *protocol.Packet {
	t.Helper()
	payload, err := protocol.EncodeValues(order, []float32{volts, charge})
	require.NoError(t, err)
	mt, err := schema.Default().Lookup(schema.BatteryStatus)
	require.NoError(t, err)
	p, err := protocol.NewPacket(mt, ts, payload)
	require.NoError(t, err)
	return p
}

func TestFileSinkReplay(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "sd.bin")
	codec := protocol.NewCodec(binary.BigEndian)

	s, err := OpenFile(path, codec)
	require.NoError(t, err)
	for i := range 3 {
		p := batteryPacket(t, binary.BigEndian, uint64(100+i), 11.5, float32(i))
		require.NoError(t, s.Handle(p))
		p.Release()
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	var seqs []uint32
	var stamps []uint64
	err = ReadFile(path, func(h frame.Header, p *protocol.Packet) error {
		require.NoError(t, protocol.Validate(schema.Default(), p))
		vals, err := protocol.DecodeValues[float32](binary.BigEndian, p)
		require.NoError(t, err)
		require.Equal(t, float32(11.5), vals[0])
		require.Equal(t, binary.BigEndian, h.ByteOrder())
		seqs = append(seqs, h.Sequence)
		stamps = append(stamps, p.Timestamp)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, seqs)
	require.Equal(t, []uint64{100, 101, 102}, stamps)
}

func TestFileSinkRejectsAfterClose(t *testing.T) {
	testlog.Start(t)
	s, err := OpenFile(filepath.Join(t.TempDir(), "sd.bin"), protocol.Codec{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Handle(batteryPacket(t, binary.LittleEndian, 1, 1, 1)), os.ErrClosed)
}

func TestReadFramesTruncatedFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "sd.bin")
	s, err := OpenFile(path, protocol.Codec{})
	require.NoError(t, err)
	require.NoError(t, s.Handle(batteryPacket(t, binary.LittleEndian, 1, 1, 1)))
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	err = ReadFrames(bytes.NewReader(raw[:len(raw)-2]), func(frame.Header, *protocol.Packet) error { return nil })
	require.Error(t, err)
}

func TestJSONLSinkDecodesValues(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	s := NewJSONL(&out, schema.Default(), protocol.Codec{})
	require.NoError(t, s.Handle(batteryPacket(t, binary.LittleEndian, 7, 12.5, 0.5)))

	sys, err := schema.Default().Lookup(schema.SystemStatus)
	require.NoError(t, err)
	p, err := protocol.NewPacket(sys, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.NoError(t, s.Handle(p))
	require.NoError(t, s.Close())

	sc := bufio.NewScanner(&out)
	var recs []map[string]any
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.Len(t, recs, 2)
	require.Equal(t, "BATTERY_STATUS", recs[0]["type"])
	require.Equal(t, []any{12.5, 0.5}, recs[0]["values"])
	require.Equal(t, []any{"SD_CARD", "RADIO"}, recs[0]["endpoints"])
	require.Equal(t, "0102030405060708", recs[1]["payload_hex"])
	require.Equal(t, []any{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0}, recs[1]["values"])
}

func TestSQLiteSinkArchivesPackets(t *testing.T) {
	testlog.Start(t)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ground.sqlite3"), schema.Radio)
	require.NoError(t, err)
	defer s.Close()

	for i := range 4 {
		p := batteryPacket(t, binary.LittleEndian, uint64(i), 1, 2)
		require.NoError(t, s.Handle(p))
		p.Release()
	}

	ctx := context.Background()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		require.Equal(t, s.Session(), rec.Session)
		require.Equal(t, "RADIO", rec.Endpoint)
		require.Equal(t, "BATTERY_STATUS", rec.Type)
		require.Equal(t, []string{"SD_CARD", "RADIO"}, rec.Endpoints)
		require.Len(t, rec.Payload, 8)
	}
	require.NoError(t, s.Close())
	require.Error(t, s.Handle(batteryPacket(t, binary.LittleEndian, 9, 1, 2)))
}

func TestSQLiteSinkQueriesAfterClose(t *testing.T) {
	testlog.Start(t)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "closed.sqlite3"), schema.Radio)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err = s.Count(ctx)
	require.ErrorIs(t, err, sql.ErrConnDone)
	recs, err := s.Recent(ctx, 5)
	require.ErrorIs(t, err, sql.ErrConnDone)
	require.Nil(t, recs)
	require.NoError(t, s.Close())
}

func TestLogSinkWritesSummary(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(&out)
	s := NewLogSink(&logger, schema.SDCard)
	require.NoError(t, s.Handle(batteryPacket(t, binary.LittleEndian, 5, 1, 2)))
	require.Contains(t, out.String(), `"type":"BATTERY_STATUS"`)
	require.Contains(t, out.String(), `"endpoint":"SD_CARD"`)
}

func TestMemoryKeepsMostRecent(t *testing.T) {
	testlog.Start(t)
	m := NewMemory(2)
	for i := range 3 {
		p := batteryPacket(t, binary.LittleEndian, uint64(i), 1, 2)
		require.NoError(t, m.Handle(p))
		p.Release()
	}
	snap := m.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, uint64(1), snap[0].Timestamp)
	require.Equal(t, uint64(2), snap[1].Timestamp)
	require.Equal(t, uint64(3), m.Total())
	require.NoError(t, m.Close())
}

func TestOpenByKind(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	s, err := Open(KindNone, "", Options{})
	require.NoError(t, err)
	require.Nil(t, s)

	_, err = Open(KindFile, "", Options{})
	require.Error(t, err)

	s, err = Open(KindJSONL, filepath.Join(dir, "out.jsonl"), Options{})
	require.NoError(t, err)
	require.IsType(t, &JSONLSink{}, s)
	require.NoError(t, s.Close())

	k, err := ParseKind("SQLite")
	require.NoError(t, err)
	require.Equal(t, KindSQLite, k)
	_, err = ParseKind("tape")
	require.Error(t, err)
}
