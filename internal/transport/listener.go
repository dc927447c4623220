package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/frame"
)

var ErrByteOrderMismatch = errors.New("transport: frame byte order does not match receiver")

// Receiver consumes one encoded packet. *router.Router satisfies it.
type Receiver interface {
	Receive(buf *buffer.Buffer) error
}

// OrderedReceiver decodes in one fixed byte order. Frames flagged with a
// different order are rejected before Receive is called.
type OrderedReceiver interface {
	Receiver
	ByteOrder() binary.ByteOrder
}

// Listener accepts peer connections and hands every frame body to a
// Receiver. A packet the receiver rejects is logged and skipped; a framing
// error closes that connection.
type Listener struct {
	cfg    Config
	recv   Receiver
	order  binary.ByteOrder
	tlsCfg *tls.Config
	pool   *buffer.Pool
	logger zerolog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	frames, rejected atomic.Uint64
}

func NewListener(cfg Config, recv Receiver) (*Listener, error) {
	if err := cfg.ValidateListener(); err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	l := &Listener{
		cfg:    cfg,
		recv:   recv,
		tlsCfg: tlsCfg,
		pool:   buffer.NewPool(),
		logger: log.Logger.With().Str("component", "listener").Logger(),
		conns:  make(map[net.Conn]struct{}),
	}
	if or, ok := recv.(OrderedReceiver); ok {
		l.order = or.ByteOrder()
	}
	return l, nil
}

// Listen binds the configured address. Use Addr to learn the bound port.
func (l *Listener) Listen() error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}
	if l.tlsCfg != nil {
		ln = tls.NewListener(ln, l.tlsCfg)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	l.logger.Info().Str("addr", ln.Addr().String()).Bool("tls", l.tlsCfg != nil).Msg("listening")
	return nil
}

func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is done. It binds first if Listen has
// not been called.
func (l *Listener) Serve(ctx context.Context) error {
	if l.Addr() == nil {
		if err := l.Listen(); err != nil {
			return err
		}
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			l.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		l.track(conn, true)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.track(conn, false)
			l.handleConn(ctx, conn)
		}()
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := l.logger.With().Str("peer", conn.RemoteAddr().String()).Logger()
	if tc, ok := conn.(*tls.Conn); ok {
		if l.cfg.DialTimeout > 0 {
			_ = tc.SetDeadline(time.Now().Add(l.cfg.DialTimeout))
		}
		if err := tc.HandshakeContext(ctx); err != nil {
			logger.Warn().Err(err).Msg("tls handshake failed")
			return
		}
		_ = tc.SetDeadline(time.Time{})
	}
	logger.Info().Msg("peer connected")

	reader := bufio.NewReader(conn)
	limits := frame.Limits{MaxBodyBytes: l.cfg.MaxFrameBytes}
	for {
		if l.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		}
		fr, err := frame.ReadFrame(reader, l.pool, limits)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.Info().Err(err).Msg("peer disconnected")
			}
			return
		}
		l.frames.Add(1)
		if err := l.deliver(fr); err != nil {
			l.rejected.Add(1)
			logger.Warn().Err(err).Uint32("seq", fr.Header.Sequence).Msg("packet rejected")
		}
		fr.Release()
	}
}

func (l *Listener) deliver(fr frame.Frame) error {
	if l.order != nil && fr.Header.ByteOrder() != l.order {
		return fmt.Errorf("%w: frame is %s, receiver decodes %s", ErrByteOrderMismatch, fr.Header.ByteOrder(), l.order)
	}
	return l.recv.Receive(fr.Body)
}

func (l *Listener) track(conn net.Conn, add bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if add {
		l.conns[conn] = struct{}{}
	} else {
		delete(l.conns, conn)
	}
}

// ListenerStats counts frames read and packets the receiver rejected.
type ListenerStats struct {
	Frames   uint64 `json:"frames"`
	Rejected uint64 `json:"rejected"`
	Peers    int    `json:"peers"`
}

func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	peers := len(l.conns)
	l.mu.Unlock()
	return ListenerStats{Frames: l.frames.Load(), Rejected: l.rejected.Load(), Peers: peers}
}

// Close stops accepting and drops every open connection.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	for conn := range l.conns {
		_ = conn.Close()
	}
	return err
}
