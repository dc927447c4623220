// Package router builds telemetry packets and dispatches them to local
// endpoint handlers and, at most once per call, to a remote transmit
// callback.
package router

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/telectl/internal/observability"
	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoTransmit     = errors.New("router: no transmit func configured")
	ErrUnknownHandler = errors.New("router: handler bound to unknown endpoint")
)

// Handler consumes a packet for one local endpoint. The packet is only valid
// for the duration of the call; Retain or Clone it to keep it.
type Handler func(p *protocol.Packet) error

// TransmitFunc sends one encoded packet to the remote side. The buffer is
// released after the call returns.
type TransmitFunc func(buf *buffer.Buffer) error

// EndpointHandler binds an endpoint id to an optional local handler. An
// entry with a nil handler still marks the endpoint as local.
type EndpointHandler struct {
	Endpoint schema.Endpoint
	Handler  Handler
}

// TransmitPolicy decides whether an endpoint needs the remote transmit.
type TransmitPolicy int

const (
	// PolicyNonLocal transmits when the endpoint has no configuration entry.
	PolicyNonLocal TransmitPolicy = iota
	// PolicyLegacy transmits when any configured endpoint differs from the
	// packet endpoint.
	PolicyLegacy
)

func (p TransmitPolicy) String() string {
	switch p {
	case PolicyNonLocal:
		return "non_local"
	case PolicyLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("TransmitPolicy(%d)", int(p))
	}
}

func ParsePolicy(raw string) (TransmitPolicy, error) {
	switch raw {
	case "", "non_local", "nonlocal":
		return PolicyNonLocal, nil
	case "legacy":
		return PolicyLegacy, nil
	default:
		return PolicyNonLocal, fmt.Errorf("router: unknown transmit policy %q", raw)
	}
}

type Config struct {
	// Name labels logs and metrics.
	Name      string
	Catalog   *schema.Catalog
	Codec     protocol.Codec
	Endpoints []EndpointHandler
	Transmit  TransmitFunc
	Policy    TransmitPolicy
	// Clock returns the packet timestamp. Defaults to unix seconds.
	Clock  func() uint64
	Logger *zerolog.Logger
}

// Stats are cumulative counters for one router.
type Stats struct {
	Logged       uint64 `json:"logged"`
	Received     uint64 `json:"received"`
	Transmitted  uint64 `json:"transmitted"`
	HandlerCalls uint64 `json:"handler_calls"`
	Errors       uint64 `json:"errors"`
}

// Router is safe for concurrent use; its configuration is read-only after New.
type Router struct {
	name      string
	catalog   *schema.Catalog
	codec     protocol.Codec
	endpoints []EndpointHandler
	transmit  TransmitFunc
	policy    TransmitPolicy
	clock     func() uint64
	logger    zerolog.Logger

	logged, received, transmitted, handlerCalls, errs atomic.Uint64
}

func New(cfg Config) (*Router, error) {
	if cfg.Catalog == nil {
		cfg.Catalog = schema.Default()
	}
	if cfg.Policy != PolicyNonLocal && cfg.Policy != PolicyLegacy {
		return nil, fmt.Errorf("router: invalid policy %s", cfg.Policy)
	}
	for i, eh := range cfg.Endpoints {
		if !cfg.Catalog.HasEndpoint(eh.Endpoint) {
			return nil, fmt.Errorf("%w: endpoints[%d]=%d", ErrUnknownHandler, i, uint32(eh.Endpoint))
		}
	}
	r := &Router{
		name:      cfg.Name,
		catalog:   cfg.Catalog,
		codec:     cfg.Codec,
		endpoints: append([]EndpointHandler(nil), cfg.Endpoints...),
		transmit:  cfg.Transmit,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		logger:    log.Logger,
	}
	if r.name == "" {
		r.name = "router"
	}
	if r.clock == nil {
		r.clock = func() uint64 { return uint64(time.Now().Unix()) }
	}
	if cfg.Logger != nil {
		r.logger = *cfg.Logger
	}
	r.logger = r.logger.With().Str("router", r.name).Logger()
	return r, nil
}

func (r *Router) Name() string             { return r.name }
func (r *Router) Catalog() *schema.Catalog { return r.catalog }
func (r *Router) Codec() protocol.Codec    { return r.codec }
func (r *Router) Policy() TransmitPolicy   { return r.policy }

// ByteOrder is the order Receive decodes in.
func (r *Router) ByteOrder() binary.ByteOrder { return r.codec.ByteOrder() }

func (r *Router) Stats() Stats {
	return Stats{
		Logged:       r.logged.Load(),
		Received:     r.received.Load(),
		Transmitted:  r.transmitted.Load(),
		HandlerCalls: r.handlerCalls.Load(),
		Errors:       r.errs.Load(),
	}
}

// Log stamps payload with the clock and dispatches it as type t.
func (r *Router) Log(t schema.DataType, payload []byte) error {
	return r.LogAt(t, r.clock(), payload)
}

// LogAt builds a packet for t with an explicit timestamp, validates it and
// dispatches it. A payload of the wrong size fails before any handler or
// transmit runs.
func (r *Router) LogAt(t schema.DataType, ts uint64, payload []byte) error {
	mt, err := r.catalog.Lookup(t)
	if err != nil {
		return r.fail("build", err)
	}
	p, err := protocol.NewPacket(mt, ts, payload)
	if err != nil {
		return r.fail("build", err)
	}
	defer p.Release()
	if err := protocol.Validate(r.catalog, p); err != nil {
		return r.fail("validate", err)
	}
	r.logged.Add(1)
	observability.RecordLogged(r.name, t.String())
	return r.Transmit(p)
}

// LogValues encodes values in the codec byte order and logs them as type t.
func LogValues[T protocol.Scalar](r *Router, t schema.DataType, values ...T) error {
	payload, err := protocol.EncodeValues(r.codec.ByteOrder(), values)
	if err != nil {
		return r.fail("build", err)
	}
	return r.Log(t, payload)
}

// Transmit runs send-side dispatch for p. Endpoints are visited in packet
// order: the first one needing the remote side triggers a single encode and
// transmit for the whole call, then every matching local handler runs in
// configuration order. The first failure ends the call; work already done
// stays done.
func (r *Router) Transmit(p *protocol.Packet) error {
	if p == nil {
		return r.fail("transmit", protocol.ErrNullInput)
	}
	if p.MessageType.NumEndpoints() == 0 {
		return nil
	}
	sent := false
	for _, ep := range p.MessageType.Endpoints {
		if !sent && r.isRemote(ep) {
			if err := r.send(p, ep); err != nil {
				return err
			}
			sent = true
		}
		if err := r.dispatchLocal(p, ep); err != nil {
			return err
		}
	}
	return nil
}

// Receive decodes buf, validates the packet and runs local handlers only.
// Received packets are never transmitted again.
func (r *Router) Receive(buf *buffer.Buffer) error {
	p, err := r.codec.Decode(buf)
	if err != nil {
		return r.fail("decode", err)
	}
	defer p.Release()
	return r.Deliver(p)
}

// ReceiveBytes is Receive over a caller-owned slice.
func (r *Router) ReceiveBytes(b []byte) error {
	buf := buffer.Wrap(b)
	defer buf.Release()
	return r.Receive(buf)
}

// Deliver validates an already decoded packet and runs local dispatch.
func (r *Router) Deliver(p *protocol.Packet) error {
	if err := protocol.Validate(r.catalog, p); err != nil {
		return r.fail("validate", err)
	}
	r.received.Add(1)
	observability.RecordReceived(r.name, p.MessageType.Type.String())
	for _, ep := range p.MessageType.Endpoints {
		if err := r.dispatchLocal(p, ep); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) isRemote(ep schema.Endpoint) bool {
	switch r.policy {
	case PolicyLegacy:
		for _, eh := range r.endpoints {
			if eh.Endpoint != ep {
				return true
			}
		}
		return false
	default:
		for _, eh := range r.endpoints {
			if eh.Endpoint == ep {
				return false
			}
		}
		return true
	}
}

func (r *Router) send(p *protocol.Packet, ep schema.Endpoint) error {
	if r.transmit == nil {
		return r.fail("transmit", &protocol.HandlerError{Endpoint: ep, Remote: true, Err: ErrNoTransmit})
	}
	buf, err := r.codec.Encode(p)
	if err != nil {
		return r.fail("encode", err)
	}
	defer buf.Release()
	err = r.transmit(buf)
	observability.RecordTransmit(r.name, err == nil)
	if err != nil {
		return r.fail("transmit", &protocol.HandlerError{Endpoint: ep, Remote: true, Err: err})
	}
	r.transmitted.Add(1)
	r.logger.Debug().
		Str("type", p.MessageType.Type.String()).
		Str("trigger", ep.String()).
		Int("bytes", buf.Len()).
		Msg("transmitted")
	return nil
}

func (r *Router) dispatchLocal(p *protocol.Packet, ep schema.Endpoint) error {
	for _, eh := range r.endpoints {
		if eh.Endpoint != ep || eh.Handler == nil {
			continue
		}
		r.handlerCalls.Add(1)
		err := eh.Handler(p)
		observability.RecordHandler(r.name, ep.String(), err == nil)
		if err != nil {
			return r.fail("handler", &protocol.HandlerError{Endpoint: ep, Err: err})
		}
	}
	return nil
}

func (r *Router) fail(stage string, err error) error {
	r.errs.Add(1)
	observability.RecordDispatchError(r.name, stage)
	r.logger.Debug().Err(err).Str("stage", stage).Msg("dispatch failed")
	return err
}
