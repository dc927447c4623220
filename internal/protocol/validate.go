package protocol

import (
	"fmt"

	"github.com/danmuck/telectl/internal/protocol/schema"
)

// Validate checks p against catalog, stopping at the first failed check:
// type range, payload size, endpoint list, endpoint range, payload presence.
func Validate(catalog *schema.Catalog, p *Packet) error {
	if catalog == nil || p == nil {
		return ErrNullInput
	}
	mt := p.MessageType

	entry, err := catalog.Entry(mt.Type)
	if err != nil {
		return &ValidationError{Check: "type", Reason: fmt.Sprintf("type_id %d out of range", uint32(mt.Type)), Cause: err}
	}
	if mt.PayloadSize != entry.PayloadSize() {
		return &ValidationError{
			Check:  "payload_size",
			Reason: fmt.Sprintf("%s declares %d bytes, catalog has %d", mt.Type, mt.PayloadSize, entry.PayloadSize()),
			Cause:  ErrSchemaMismatch,
		}
	}
	if mt.NumEndpoints() == 0 {
		return &ValidationError{Check: "endpoints", Reason: "endpoint list empty"}
	}
	for i, ep := range mt.Endpoints {
		if !catalog.HasEndpoint(ep) {
			return &ValidationError{
				Check:  "endpoint",
				Reason: fmt.Sprintf("endpoints[%d]=%d out of range", i, uint32(ep)),
				Cause:  schema.ErrUnknownEndpoint,
			}
		}
	}
	if n := len(p.PayloadBytes()); mt.PayloadSize > 0 && n != mt.PayloadSize {
		return &ValidationError{Check: "payload", Reason: fmt.Sprintf("payload has %d bytes, want %d", n, mt.PayloadSize)}
	}
	return nil
}
