package sinks

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

type jsonRecord struct {
	Logged     string   `json:"logged"`
	Type       string   `json:"type"`
	Timestamp  uint64   `json:"timestamp"`
	Endpoints  []string `json:"endpoints"`
	PayloadHex string   `json:"payload_hex"`
	Values     any      `json:"values,omitempty"`
}

// JSONLSink writes one JSON object per packet with the payload decoded into
// the element kind the catalog declares.
type JSONLSink struct {
	mu      sync.Mutex
	closer  io.Closer
	enc     *json.Encoder
	catalog *schema.Catalog
	codec   protocol.Codec
	now     func() time.Time
}

func OpenJSONL(path string, catalog *schema.Catalog, codec protocol.Codec) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sinks: open %s: %w", path, err)
	}
	s := NewJSONL(f, catalog, codec)
	s.closer = f
	return s, nil
}

func NewJSONL(w io.Writer, catalog *schema.Catalog, codec protocol.Codec) *JSONLSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{enc: enc, catalog: catalog, codec: codec, now: time.Now}
}

func (s *JSONLSink) Handle(p *protocol.Packet) error {
	rec := jsonRecord{
		Logged:     s.now().UTC().Format(time.RFC3339Nano),
		Type:       p.MessageType.Type.String(),
		Timestamp:  p.Timestamp,
		Endpoints:  endpointNames(p.MessageType.Endpoints),
		PayloadHex: hex.EncodeToString(p.PayloadBytes()),
		Values:     decodeValues(s.codec, s.catalog, p),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

func (s *JSONLSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func decodeValues(codec protocol.Codec, catalog *schema.Catalog, p *protocol.Packet) any {
	order := codec.ByteOrder()
	var (
		vals any
		err  error
	)
	switch protocol.InferKind(catalog, p) {
	case schema.KindF32:
		vals, err = protocol.DecodeValues[float32](order, p)
	case schema.KindF64:
		vals, err = protocol.DecodeValues[float64](order, p)
	case schema.KindU8:
		// []uint8 would marshal as base64
		var raw []uint8
		raw, err = protocol.DecodeValues[uint8](order, p)
		ints := make([]uint16, len(raw))
		for i, v := range raw {
			ints[i] = uint16(v)
		}
		vals = ints
	case schema.KindU16:
		vals, err = protocol.DecodeValues[uint16](order, p)
	case schema.KindU32:
		vals, err = protocol.DecodeValues[uint32](order, p)
	case schema.KindU64:
		vals, err = protocol.DecodeValues[uint64](order, p)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return vals
}
