// Package node assembles a board or ground station from its configuration:
// the router, its local sinks, the remote link and the status API.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/telectl/internal/auth"
	"github.com/danmuck/telectl/internal/config"
	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/router"
	"github.com/danmuck/telectl/internal/server"
	"github.com/danmuck/telectl/internal/sinks"
	"github.com/danmuck/telectl/internal/transport"
)

const recentPerEndpoint = 64

// Node is one running telemetry participant.
type Node struct {
	cfg      config.Config
	catalog  *schema.Catalog
	codec    protocol.Codec
	logger   zerolog.Logger
	router   *router.Router
	sender   *transport.Sender
	listener *transport.Listener
	http     *server.Server
	sinks    []sinks.Sink
	recent   map[schema.Endpoint]*sinks.Memory
	archive  *sinks.SQLiteSink
}

// Status is the /stats body.
type Status struct {
	Name     string                   `json:"name"`
	Kind     string                   `json:"kind"`
	Policy   string                   `json:"transmit_policy"`
	Router   router.Stats             `json:"router"`
	Sender   *transport.SenderStats   `json:"sender,omitempty"`
	Listener *transport.ListenerStats `json:"listener,omitempty"`
	Recent   map[string]uint64        `json:"recent_totals"`
}

// Build opens every sink and link cfg names. Close releases them.
func Build(cfg config.Config) (n *Node, err error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	order, err := cfg.Order()
	if err != nil {
		return nil, err
	}
	n = &Node{
		cfg:     cfg,
		catalog: schema.Default(),
		codec:   protocol.NewCodec(order),
		logger:  log.Logger.With().Str("node", cfg.Name).Logger(),
		recent:  make(map[schema.Endpoint]*sinks.Memory),
	}
	defer func() {
		if err != nil {
			_ = n.Close()
			n = nil
		}
	}()

	var handlers []router.EndpointHandler
	for i, epc := range cfg.Endpoints {
		ep, err := schema.ParseEndpoint(epc.Name)
		if err != nil {
			return nil, fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		kind, err := sinks.ParseKind(epc.Sink)
		if err != nil {
			return nil, fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		sink, err := sinks.Open(kind, epc.Path, sinks.Options{Catalog: n.catalog, Codec: n.codec, Endpoint: ep})
		if err != nil {
			return nil, fmt.Errorf("endpoints[%d]: %w", i, err)
		}
		eh := router.EndpointHandler{Endpoint: ep}
		if sink != nil {
			n.sinks = append(n.sinks, sink)
			eh.Handler = sink.Handle
			if a, ok := sink.(*sinks.SQLiteSink); ok && n.archive == nil {
				n.archive = a
			}
		}
		handlers = append(handlers, eh)
		if _, ok := n.recent[ep]; !ok {
			mem := sinks.NewMemory(recentPerEndpoint)
			n.recent[ep] = mem
			n.sinks = append(n.sinks, mem)
			handlers = append(handlers, router.EndpointHandler{Endpoint: ep, Handler: mem.Handle})
		}
	}

	var transmit router.TransmitFunc
	if cfg.Transport.Addr != "" {
		n.sender, err = transport.NewSender(cfg.Link(cfg.Transport.Addr), order)
		if err != nil {
			return nil, err
		}
		transmit = n.sender.Send
	}

	n.router, err = router.New(router.Config{
		Name:      cfg.Name,
		Catalog:   n.catalog,
		Codec:     n.codec,
		Endpoints: handlers,
		Transmit:  transmit,
		Policy:    cfg.Policy(),
		Logger:    &n.logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Transport.Listen != "" {
		n.listener, err = transport.NewListener(cfg.Link(cfg.Transport.Listen), n.router)
		if err != nil {
			return nil, err
		}
	}

	opts := server.Options{
		Name:        cfg.Name,
		Kind:        n.Kind(),
		CorsOrigins: cfg.HTTP.CorsOrigins,
		Catalog:     n.catalog,
		Codec:       n.codec,
		Status:      func() any { return n.Status() },
		Logger:      &n.logger,
	}
	if len(n.recent) > 0 {
		opts.Recent = n.Recent
	}
	if n.archive != nil {
		opts.Archive = n.archive.Recent
	}
	if cfg.HTTP.Token != "" {
		opts.Auth = auth.StaticToken{Token: cfg.HTTP.Token}
	}
	n.http = server.New(opts)
	return n, nil
}

func (n *Node) NodeID() string           { return n.cfg.Name }
func (n *Node) Router() *router.Router   { return n.router }
func (n *Node) HTTPRouter() *gin.Engine  { return n.http.Handler() }
func (n *Node) Codec() protocol.Codec    { return n.codec }
func (n *Node) Catalog() *schema.Catalog { return n.catalog }

// LinkAddr is the bound link address once Run has started listening.
func (n *Node) LinkAddr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Kind is "ground" for a node that accepts a link and "board" otherwise.
func (n *Node) Kind() string {
	if n.cfg.Transport.Listen != "" {
		return "ground"
	}
	return "board"
}

// Recent returns clones of the packets an endpoint handled most recently.
func (n *Node) Recent(ep schema.Endpoint) []*protocol.Packet {
	mem, ok := n.recent[ep]
	if !ok {
		return nil
	}
	return mem.Snapshot()
}

func (n *Node) Status() Status {
	st := Status{
		Name:   n.cfg.Name,
		Kind:   n.Kind(),
		Policy: n.router.Policy().String(),
		Router: n.router.Stats(),
		Recent: make(map[string]uint64, len(n.recent)),
	}
	if n.sender != nil {
		s := n.sender.Stats()
		st.Sender = &s
	}
	if n.listener != nil {
		l := n.listener.Stats()
		st.Listener = &l
	}
	for ep, mem := range n.recent {
		st.Recent[ep.String()] = mem.Total()
	}
	return st
}

// Run serves the link listener and the HTTP API until ctx is done or one of
// them fails.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if n.listener != nil {
		if err := n.listener.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return n.listener.Serve(ctx) })
	}
	if addr := n.cfg.HTTP.Addr; addr != "" {
		g.Go(func() error { return n.http.ListenAndServe(ctx, addr) })
	}
	n.logger.Info().Str("kind", n.Kind()).Str("http", n.cfg.HTTP.Addr).Msg("node running")
	return g.Wait()
}

func (n *Node) Close() error {
	var errs []error
	if n.sender != nil {
		errs = append(errs, n.sender.Close())
	}
	if n.listener != nil {
		errs = append(errs, n.listener.Close())
	}
	for _, s := range n.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
