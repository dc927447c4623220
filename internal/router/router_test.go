package router

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const (
	epA schema.Endpoint = 0
	epB schema.Endpoint = 1
	epC schema.Endpoint = 2
)

type recorder struct {
	calls     []string
	transmits [][]byte
}

func (rec *recorder) handler(name string, err error) Handler {
	return func(p *protocol.Packet) error {
		rec.calls = append(rec.calls, name)
		return err
	}
}

func (rec *recorder) transmit(err error) TransmitFunc {
	return func(buf *buffer.Buffer) error {
		rec.calls = append(rec.calls, "transmit")
		rec.transmits = append(rec.transmits, append([]byte(nil), buf.Bytes()...))
		return err
	}
}

// threeEndpointCatalog declares one type routed to [B, A, C].
func threeEndpointCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat, err := schema.NewCatalog([]schema.Entry{
		{Type: schema.GPSData, Elements: 3, Kind: schema.KindF32, Endpoints: []schema.Endpoint{epB, epA, epC}},
	}, 3)
	require.NoError(t, err)
	return cat
}

func fixedClock() uint64 { return 1123581321 }

func TestLogTransmitsOnceForManyRemoteEndpoints(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Catalog:   threeEndpointCatalog(t),
		Endpoints: []EndpointHandler{{Endpoint: epA, Handler: rec.handler("A", nil)}},
		Transmit:  rec.transmit(nil),
		Clock:     fixedClock,
	})
	require.NoError(t, err)

	require.NoError(t, r.Log(schema.GPSData, make([]byte, 12)))
	require.Len(t, rec.transmits, 1)
	require.Equal(t, []string{"transmit", "A"}, rec.calls)

	p, err := protocol.DecodeBytes(rec.transmits[0])
	require.NoError(t, err)
	require.Equal(t, uint64(1123581321), p.Timestamp)
	require.Equal(t, []schema.Endpoint{epB, epA, epC}, p.MessageType.Endpoints)
	require.Equal(t, uint64(1), r.Stats().Transmitted)
}

func TestLocalHandlersFollowPacketThenConfigOrder(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Catalog: threeEndpointCatalog(t),
		Endpoints: []EndpointHandler{
			{Endpoint: epA, Handler: rec.handler("A1", nil)},
			{Endpoint: epB, Handler: rec.handler("B", nil)},
			{Endpoint: epA, Handler: rec.handler("A2", nil)},
			{Endpoint: epC, Handler: rec.handler("C", nil)},
		},
		Clock: fixedClock,
	})
	require.NoError(t, err)

	for range 3 {
		rec.calls = nil
		require.NoError(t, r.Log(schema.GPSData, make([]byte, 12)))
		require.Equal(t, []string{"B", "A1", "A2", "C"}, rec.calls)
	}
}

func TestHandlerFailureShortCircuits(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("sd card full")
	rec := &recorder{}
	r, err := New(Config{
		Catalog: threeEndpointCatalog(t),
		Endpoints: []EndpointHandler{
			{Endpoint: epA, Handler: rec.handler("A", boom)},
			{Endpoint: epB, Handler: rec.handler("B", nil)},
			{Endpoint: epC, Handler: rec.handler("C", nil)},
		},
		Clock: fixedClock,
	})
	require.NoError(t, err)

	err = r.Log(schema.GPSData, make([]byte, 12))
	require.ErrorIs(t, err, protocol.ErrHandler)
	require.ErrorIs(t, err, boom)
	var herr *protocol.HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, epA, herr.Endpoint)
	require.False(t, herr.Remote)
	// B already ran and is not rolled back; C never runs.
	require.Equal(t, []string{"B", "A"}, rec.calls)
	require.Equal(t, uint64(1), r.Stats().Errors)
}

func TestSizeMismatchInvokesNothing(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Endpoints: []EndpointHandler{{Endpoint: schema.SDCard, Handler: rec.handler("sd", nil)}},
		Transmit:  rec.transmit(nil),
	})
	require.NoError(t, err)

	err = r.Log(schema.GPSData, make([]byte, 11))
	require.ErrorIs(t, err, protocol.ErrSchemaMismatch)
	require.Empty(t, rec.calls)
	require.Zero(t, r.Stats().Logged)
}

func TestUnknownTypeFails(t *testing.T) {
	testlog.Start(t)
	r, err := New(Config{})
	require.NoError(t, err)
	require.Error(t, r.Log(schema.NumDataTypes, nil))
}

func TestTransmitFailureStopsLaterHandlers(t *testing.T) {
	testlog.Start(t)
	linkDown := errors.New("link down")
	rec := &recorder{}
	r, err := New(Config{
		Catalog: threeEndpointCatalog(t),
		Endpoints: []EndpointHandler{
			{Endpoint: epB, Handler: rec.handler("B", nil)},
			{Endpoint: epA, Handler: rec.handler("A", nil)},
		},
		Transmit: rec.transmit(linkDown),
		Clock:    fixedClock,
	})
	require.NoError(t, err)

	err = r.Log(schema.GPSData, make([]byte, 12))
	require.ErrorIs(t, err, linkDown)
	var herr *protocol.HandlerError
	require.ErrorAs(t, err, &herr)
	require.True(t, herr.Remote)
	require.Equal(t, epC, herr.Endpoint)
	require.Equal(t, []string{"B", "A", "transmit"}, rec.calls)
}

func TestAllLocalNeverTransmits(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Endpoints: []EndpointHandler{
			{Endpoint: schema.SDCard, Handler: rec.handler("sd", nil)},
			{Endpoint: schema.Radio},
		},
		Transmit: rec.transmit(nil),
	})
	require.NoError(t, err)

	require.NoError(t, r.Log(schema.BatteryStatus, make([]byte, 8)))
	require.Empty(t, rec.transmits)
	require.Equal(t, []string{"sd"}, rec.calls)
}

func TestLegacyPolicyTransmitsWhenAnyConfiguredEndpointDiffers(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Endpoints: []EndpointHandler{
			{Endpoint: schema.SDCard, Handler: rec.handler("sd", nil)},
			{Endpoint: schema.Radio},
		},
		Transmit: rec.transmit(nil),
		Policy:   PolicyLegacy,
	})
	require.NoError(t, err)

	// SYSTEM_STATUS only targets SD_CARD, yet RADIO is configured and differs.
	require.NoError(t, r.Log(schema.SystemStatus, make([]byte, 8)))
	require.Len(t, rec.transmits, 1)
	require.Equal(t, []string{"transmit", "sd"}, rec.calls)

	rec.calls, rec.transmits = nil, nil
	nonLocal, err := New(Config{
		Endpoints: []EndpointHandler{
			{Endpoint: schema.SDCard, Handler: rec.handler("sd", nil)},
			{Endpoint: schema.Radio},
		},
		Transmit: rec.transmit(nil),
	})
	require.NoError(t, err)
	require.NoError(t, nonLocal.Log(schema.SystemStatus, make([]byte, 8)))
	require.Empty(t, rec.transmits)
}

func TestMissingTransmitFuncFails(t *testing.T) {
	testlog.Start(t)
	r, err := New(Config{Endpoints: []EndpointHandler{{Endpoint: schema.SDCard}}})
	require.NoError(t, err)
	err = r.Log(schema.GPSData, make([]byte, 12))
	require.ErrorIs(t, err, ErrNoTransmit)
}

func TestTransmitEmptyEndpointListIsNoop(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{Transmit: rec.transmit(nil)})
	require.NoError(t, err)
	p := &protocol.Packet{MessageType: schema.MessageType{Type: schema.GPSData}}
	require.NoError(t, r.Transmit(p))
	require.Empty(t, rec.calls)
	require.ErrorIs(t, r.Transmit(nil), protocol.ErrNullInput)
}

func TestReceiveDispatchesLocallyOnly(t *testing.T) {
	testlog.Start(t)
	var got []byte
	rec := &recorder{}
	r, err := New(Config{
		Endpoints: []EndpointHandler{{Endpoint: schema.SDCard, Handler: func(p *protocol.Packet) error {
			got = p.Bytes()
			return nil
		}}},
		Transmit: rec.transmit(nil),
	})
	require.NoError(t, err)

	mt, err := schema.Default().Lookup(schema.GPSData)
	require.NoError(t, err)
	payload := []byte{0x13, 0x21, 0x34, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}
	p, err := protocol.NewPacket(mt, 99, payload)
	require.NoError(t, err)
	buf, err := protocol.Encode(p)
	require.NoError(t, err)

	require.NoError(t, r.Receive(buf))
	require.Equal(t, payload, got)
	require.Empty(t, rec.transmits)
	require.Equal(t, uint64(1), r.Stats().Received)
}

func TestReceiveDecodeFailureInvokesNoHandler(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Endpoints: []EndpointHandler{{Endpoint: schema.SDCard, Handler: rec.handler("sd", nil)}},
	})
	require.NoError(t, err)

	err = r.ReceiveBytes(make([]byte, protocol.HeaderSize-1))
	require.ErrorIs(t, err, protocol.ErrTruncated)

	bad := make([]byte, protocol.HeaderSize+4)
	binary.LittleEndian.PutUint32(bad[0:4], 77)
	binary.LittleEndian.PutUint32(bad[16:20], 1)
	err = r.ReceiveBytes(bad)
	require.ErrorIs(t, err, protocol.ErrValidation)
	require.Empty(t, rec.calls)
}

func TestLogValuesUsesCodecOrder(t *testing.T) {
	testlog.Start(t)
	rec := &recorder{}
	r, err := New(Config{
		Codec:     protocol.Codec{Order: binary.BigEndian},
		Endpoints: []EndpointHandler{{Endpoint: schema.SDCard}},
		Transmit:  rec.transmit(nil),
	})
	require.NoError(t, err)

	require.NoError(t, LogValues(r, schema.BatteryStatus, float32(12.5), 0.75))
	require.Len(t, rec.transmits, 1)
	p, err := protocol.Codec{Order: binary.BigEndian}.DecodeBytes(rec.transmits[0])
	require.NoError(t, err)
	vals, err := protocol.DecodeValues[float32](binary.BigEndian, p)
	require.NoError(t, err)
	require.Equal(t, []float32{12.5, 0.75}, vals)

	require.ErrorIs(t, LogValues(r, schema.BatteryStatus, float32(1)), protocol.ErrSchemaMismatch)
}

func TestNewRejectsUnknownEndpoint(t *testing.T) {
	testlog.Start(t)
	_, err := New(Config{Endpoints: []EndpointHandler{{Endpoint: 9}}})
	require.ErrorIs(t, err, ErrUnknownHandler)
	_, err = New(Config{Policy: TransmitPolicy(7)})
	require.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("legacy")
	require.NoError(t, err)
	require.Equal(t, PolicyLegacy, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyNonLocal, p)
	_, err = ParsePolicy("broadcast")
	require.Error(t, err)
}
