package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/telectl/internal/testutil/testlog"
)

func TestDefaultCatalogSizes(t *testing.T) {
	testlog.Start(t)
	c := Default()
	want := map[DataType]int{
		GPSData:       12,
		IMUData:       24,
		BatteryStatus: 8,
		SystemStatus:  8,
	}
	for typ, size := range want {
		mt, err := c.Lookup(typ)
		if err != nil {
			t.Fatalf("lookup %s: %v", typ, err)
		}
		if mt.PayloadSize != size {
			t.Fatalf("%s size got=%d want=%d", typ, mt.PayloadSize, size)
		}
	}
	mt, _ := c.Lookup(SystemStatus)
	if mt.NumEndpoints() != 1 || mt.Endpoints[0] != SDCard {
		t.Fatalf("system status endpoints: %v", mt.Endpoints)
	}
}

func TestLookupReturnsIndependentCopy(t *testing.T) {
	testlog.Start(t)
	c := Default()
	a, _ := c.Lookup(GPSData)
	a.Endpoints[0] = Radio
	b, _ := c.Lookup(GPSData)
	if b.Endpoints[0] != SDCard {
		t.Fatalf("catalog mutated through a copy: %v", b.Endpoints)
	}
}

func TestLookupOutOfRange(t *testing.T) {
	testlog.Start(t)
	_, err := Default().Lookup(NumDataTypes)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if Default().HasEndpoint(Endpoint(99)) {
		t.Fatalf("endpoint 99 should be out of range")
	}
}

func TestNewCatalogRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	if _, err := NewCatalog([]Entry{{Type: IMUData, Elements: 1, Kind: KindU8, Endpoints: []Endpoint{SDCard}}}, 2); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("misindexed entry: %v", err)
	}
	if _, err := NewCatalog([]Entry{{Type: GPSData, Elements: 1, Kind: KindU8}}, 2); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("entry without endpoints: %v", err)
	}
	if _, err := NewCatalog([]Entry{{Type: GPSData, Elements: 1, Kind: KindU8, Endpoints: []Endpoint{5}}}, 2); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("entry with unknown endpoint: %v", err)
	}
}

func TestParseNames(t *testing.T) {
	testlog.Start(t)
	ep, err := ParseEndpoint(" sd_card ")
	if err != nil || ep != SDCard {
		t.Fatalf("parse endpoint got=%v err=%v", ep, err)
	}
	typ, err := ParseDataType("battery_status")
	if err != nil || typ != BatteryStatus {
		t.Fatalf("parse type got=%v err=%v", typ, err)
	}
	if _, err := ParseEndpoint("LASER"); !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("expected ErrUnknownEndpoint, got %v", err)
	}
	if got := Endpoint(7).String(); got != "Endpoint(7)" {
		t.Fatalf("unexpected string %q", got)
	}
}
