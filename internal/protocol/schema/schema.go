package schema

import (
	"errors"
	"fmt"
	"strings"
)

// DataType is the wire ordinal of a message type.
type DataType uint32

// Message types known to the default catalog.
const (
	GPSData DataType = iota
	IMUData
	BatteryStatus
	SystemStatus

	NumDataTypes
)

// Endpoint is the wire ordinal of a destination.
type Endpoint uint32

// Endpoints known to the default catalog.
const (
	SDCard Endpoint = iota
	Radio

	NumEndpoints
)

var (
	ErrUnknownType     = errors.New("schema: unknown data type")
	ErrUnknownEndpoint = errors.New("schema: unknown endpoint")
	ErrInvalidEntry    = errors.New("schema: invalid catalog entry")
)

var dataTypeNames = [NumDataTypes]string{
	"GPS_DATA",
	"IMU_DATA",
	"BATTERY_STATUS",
	"SYSTEM_STATUS",
}

var endpointNames = [NumEndpoints]string{
	"SD_CARD",
	"RADIO",
}

func (t DataType) String() string {
	if t < NumDataTypes {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint32(t))
}

func (e Endpoint) String() string {
	if e < NumEndpoints {
		return endpointNames[e]
	}
	return fmt.Sprintf("Endpoint(%d)", uint32(e))
}

// ParseDataType resolves a message type by name, case-insensitively.
func ParseDataType(name string) (DataType, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range dataTypeNames {
		if n == key {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

// ParseEndpoint resolves an endpoint by name, case-insensitively.
func ParseEndpoint(name string) (Endpoint, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range endpointNames {
		if n == key {
			return Endpoint(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
}

// ElementKind is the scalar type a payload is made of.
type ElementKind uint8

const (
	KindBytes ElementKind = iota
	KindF32
	KindF64
	KindU8
	KindU16
	KindU32
	KindU64
)

// Size returns the width of one element in bytes.
func (k ElementKind) Size() int {
	switch k {
	case KindF32, KindU32:
		return 4
	case KindF64, KindU64:
		return 8
	case KindU16:
		return 2
	default:
		return 1
	}
}

func (k ElementKind) String() string {
	switch k {
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	default:
		return "bytes"
	}
}

// MessageType is a value copy of one catalog entry carried by every packet.
type MessageType struct {
	Type        DataType
	PayloadSize int
	Endpoints   []Endpoint
}

// NumEndpoints returns the endpoint count written on the wire.
func (m MessageType) NumEndpoints() int {
	return len(m.Endpoints)
}

// Clone returns a copy that does not share the endpoint slice.
func (m MessageType) Clone() MessageType {
	out := m
	if m.Endpoints != nil {
		out.Endpoints = append([]Endpoint(nil), m.Endpoints...)
	}
	return out
}

// Entry is a catalog row: the message type plus its element layout.
type Entry struct {
	Type      DataType
	Elements  int
	Kind      ElementKind
	Endpoints []Endpoint
}

// PayloadSize returns Elements * Kind.Size().
func (e Entry) PayloadSize() int {
	return e.Elements * e.Kind.Size()
}

// Catalog is the immutable lookup from data type to message layout.
type Catalog struct {
	entries      []Entry
	numEndpoints int
}

// NewCatalog validates entries and builds a catalog. entries[i].Type must equal i.
func NewCatalog(entries []Entry, numEndpoints int) (*Catalog, error) {
	if numEndpoints <= 0 {
		return nil, fmt.Errorf("%w: catalog needs at least one endpoint", ErrInvalidEntry)
	}
	out := make([]Entry, 0, len(entries))
	for i, entry := range entries {
		if entry.Type != DataType(i) {
			return nil, fmt.Errorf("%w: entry[%d] has type %d", ErrInvalidEntry, i, entry.Type)
		}
		if entry.Elements < 0 {
			return nil, fmt.Errorf("%w: entry[%d] has negative element count", ErrInvalidEntry, i)
		}
		if len(entry.Endpoints) == 0 {
			return nil, fmt.Errorf("%w: entry[%d] has no endpoints", ErrInvalidEntry, i)
		}
		for _, ep := range entry.Endpoints {
			if int(ep) >= numEndpoints {
				return nil, fmt.Errorf("%w: entry[%d] endpoint %d", ErrUnknownEndpoint, i, ep)
			}
		}
		entry.Endpoints = append([]Endpoint(nil), entry.Endpoints...)
		out = append(out, entry)
	}
	return &Catalog{entries: out, numEndpoints: numEndpoints}, nil
}

var defaultCatalog = mustCatalog(NewCatalog([]Entry{
	{Type: GPSData, Elements: 3, Kind: KindF32, Endpoints: []Endpoint{SDCard, Radio}},
	{Type: IMUData, Elements: 6, Kind: KindF32, Endpoints: []Endpoint{SDCard, Radio}},
	{Type: BatteryStatus, Elements: 2, Kind: KindF32, Endpoints: []Endpoint{SDCard, Radio}},
	{Type: SystemStatus, Elements: 8, Kind: KindU8, Endpoints: []Endpoint{SDCard}},
}, int(NumEndpoints)))

func mustCatalog(c *Catalog, err error) *Catalog {
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the board catalog shared by every deployment.
func Default() *Catalog {
	return defaultCatalog
}

// NumTypes returns how many data types the catalog defines.
func (c *Catalog) NumTypes() int {
	return len(c.entries)
}

// NumEndpoints returns the endpoint range of the catalog.
func (c *Catalog) NumEndpoints() int {
	return c.numEndpoints
}

func (c *Catalog) HasType(t DataType) bool {
	return uint64(t) < uint64(len(c.entries))
}

func (c *Catalog) HasEndpoint(e Endpoint) bool {
	return uint64(e) < uint64(c.numEndpoints)
}

// Entry returns the catalog row for t.
func (c *Catalog) Entry(t DataType) (Entry, error) {
	if !c.HasType(t) {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownType, uint32(t))
	}
	return c.entries[t], nil
}

// Lookup returns a fresh MessageType copy for t.
func (c *Catalog) Lookup(t DataType) (MessageType, error) {
	entry, err := c.Entry(t)
	if err != nil {
		return MessageType{}, err
	}
	return MessageType{
		Type:        entry.Type,
		PayloadSize: entry.PayloadSize(),
		Endpoints:   append([]Endpoint(nil), entry.Endpoints...),
	}, nil
}
