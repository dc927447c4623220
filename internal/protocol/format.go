package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/telectl/internal/protocol/schema"
)

// PayloadFormat selects how Format renders payload elements.
type PayloadFormat int

const (
	FormatAuto PayloadFormat = iota
	FormatF32
	FormatF64
	FormatU8
	FormatU16
	FormatU32
	FormatU64
	FormatHex
)

const floatPrecision = 12

// ParsePayloadFormat maps a CLI/config name to a PayloadFormat.
func ParsePayloadFormat(raw string) (PayloadFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return FormatAuto, nil
	case "f32", "float32":
		return FormatF32, nil
	case "f64", "float64":
		return FormatF64, nil
	case "u8":
		return FormatU8, nil
	case "u16":
		return FormatU16, nil
	case "u32":
		return FormatU32, nil
	case "u64":
		return FormatU64, nil
	case "hex":
		return FormatHex, nil
	default:
		return FormatAuto, fmt.Errorf("protocol: unknown payload format %q", raw)
	}
}

// MetadataString renders the header fields of p.
func MetadataString(p *Packet) string {
	if p == nil {
		return "ERROR: null packet"
	}
	names := make([]string, 0, p.MessageType.NumEndpoints())
	for _, ep := range p.MessageType.Endpoints {
		names = append(names, ep.String())
	}
	return fmt.Sprintf("Type: %s, Size: %d, Endpoints: [%s], Timestamp: %d",
		p.MessageType.Type, p.MessageType.PayloadSize, strings.Join(names, ", "), p.Timestamp)
}

// HexString renders the metadata followed by a hex dump of the payload.
func HexString(p *Packet) string {
	if p == nil || (p.MessageType.PayloadSize > 0 && p.PayloadBytes() == nil) {
		return "ERROR: null packet or data"
	}
	var sb strings.Builder
	sb.WriteString(MetadataString(p))
	sb.WriteString(", Payload (hex):")
	for _, b := range p.PayloadBytes() {
		fmt.Fprintf(&sb, " 0x%02x", b)
	}
	return sb.String()
}

// Format renders p with its payload decoded per f. FormatAuto picks the
// element kind the catalog declares.
func (c Codec) Format(catalog *schema.Catalog, p *Packet, f PayloadFormat) string {
	if p == nil {
		return "ERROR: null packet"
	}
	if catalog != nil && !catalog.HasType(p.MessageType.Type) {
		return "ERROR: invalid type"
	}
	head := MetadataString(p)
	data := p.PayloadBytes()
	if p.MessageType.PayloadSize == 0 || data == nil {
		return head + ", Data: <empty>"
	}
	if f == FormatAuto {
		f = formatForKind(InferKind(catalog, p))
	}

	var (
		parts []string
		err   error
	)
	order := c.order()
	switch f {
	case FormatF32:
		parts, err = render(order, p, func(v float32) string {
			return strconv.FormatFloat(float64(v), 'f', floatPrecision, 32)
		})
	case FormatF64:
		parts, err = render(order, p, func(v float64) string {
			return strconv.FormatFloat(v, 'f', floatPrecision, 64)
		})
	case FormatU8:
		parts, err = render(order, p, func(v uint8) string { return strconv.FormatUint(uint64(v), 10) })
	case FormatU16:
		parts, err = render(order, p, func(v uint16) string { return strconv.FormatUint(uint64(v), 10) })
	case FormatU32:
		parts, err = render(order, p, func(v uint32) string { return strconv.FormatUint(uint64(v), 10) })
	case FormatU64:
		parts, err = render(order, p, func(v uint64) string { return strconv.FormatUint(v, 10) })
	default:
		hex := make([]string, len(data))
		for i, b := range data {
			hex[i] = fmt.Sprintf("0x%02x", b)
		}
		return head + ", Data: " + strings.Join(hex, " ")
	}
	if err != nil {
		return fmt.Sprintf("%s, ERROR: payload size (%d bytes) not multiple of elem_size=%d",
			head, len(data), elemSize(f))
	}
	return head + ", Data: " + strings.Join(parts, ", ")
}

func render[T Scalar](order binary.ByteOrder, p *Packet, str func(T) string) ([]string, error) {
	vals, err := DecodeValues[T](order, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = str(v)
	}
	return out, nil
}

func formatForKind(k schema.ElementKind) PayloadFormat {
	switch k {
	case schema.KindF32:
		return FormatF32
	case schema.KindF64:
		return FormatF64
	case schema.KindU8:
		return FormatU8
	case schema.KindU16:
		return FormatU16
	case schema.KindU32:
		return FormatU32
	case schema.KindU64:
		return FormatU64
	default:
		return FormatHex
	}
}

func elemSize(f PayloadFormat) int {
	switch f {
	case FormatF64, FormatU64:
		return 8
	case FormatF32, FormatU32:
		return 4
	case FormatU16:
		return 2
	default:
		return 1
	}
}
