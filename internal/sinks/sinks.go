// Package sinks holds the local endpoint handlers a board or ground station
// can bind to an endpoint: frame files, JSON lines, SQLite and the log.
package sinks

import (
	"fmt"
	"strings"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

// Sink consumes packets for one local endpoint. Handle must not keep p after
// it returns unless it retains or clones it.
type Sink interface {
	Handle(p *protocol.Packet) error
	Close() error
}

type Kind string

const (
	KindNone   Kind = "none"
	KindFile   Kind = "file"
	KindJSONL  Kind = "jsonl"
	KindSQLite Kind = "sqlite"
	KindLog    Kind = "log"
)

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return KindNone, nil
	case KindNone, KindFile, KindJSONL, KindSQLite, KindLog:
		return k, nil
	default:
		return KindNone, fmt.Errorf("sinks: unknown sink kind %q", raw)
	}
}

// NeedsPath reports whether k writes to a path.
func (k Kind) NeedsPath() bool {
	return k == KindFile || k == KindJSONL || k == KindSQLite
}

// Options carries what Open needs beyond kind and path.
type Options struct {
	Catalog  *schema.Catalog
	Codec    protocol.Codec
	Endpoint schema.Endpoint
}

// Open builds the sink for kind. KindNone returns a nil sink.
func Open(kind Kind, path string, opts Options) (Sink, error) {
	if opts.Catalog == nil {
		opts.Catalog = schema.Default()
	}
	if kind.NeedsPath() && path == "" {
		return nil, fmt.Errorf("sinks: %s sink needs a path", kind)
	}
	var (
		s   Sink
		err error
	)
	switch kind {
	case KindNone:
		return nil, nil
	case KindFile:
		s, err = OpenFile(path, opts.Codec)
	case KindJSONL:
		s, err = OpenJSONL(path, opts.Catalog, opts.Codec)
	case KindSQLite:
		s, err = OpenSQLite(path, opts.Endpoint)
	case KindLog:
		s = NewLogSink(nil, opts.Endpoint)
	default:
		return nil, fmt.Errorf("sinks: unknown sink kind %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func endpointNames(eps []schema.Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}
	return out
}
