package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/telectl/internal/observability"
	"github.com/danmuck/telectl/internal/protocol/buffer"
	"github.com/danmuck/telectl/internal/protocol/frame"
)

var ErrBackoff = errors.New("transport: link down, waiting to redial")

// Sender writes encoded packets to one remote peer as frames. Send has the
// shape of a router transmit func. A failed dial or write drops the
// connection; the next Send redials once the backoff delay has passed and
// fails fast before that. Send never retries on its own.
type Sender struct {
	cfg    Config
	flags  uint16
	tlsCfg *tls.Config
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	conn      net.Conn
	seq       uint32
	failures  int
	nextDial  time.Time
	rng       *rand.Rand
	sentBytes uint64
	sent      uint64
}

// NewSender validates cfg and prepares a sender for packets encoded in order.
// No connection is made until the first Send.
func NewSender(cfg Config, order binary.ByteOrder) (*Sender, error) {
	if err := cfg.ValidateSender(); err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.ClientTLSConfig()
	if err != nil {
		return nil, err
	}
	return &Sender{
		cfg:    cfg,
		flags:  frame.OrderFlags(order),
		tlsCfg: tlsCfg,
		logger: log.Logger.With().Str("component", "sender").Str("peer", cfg.Addr).Logger(),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Send writes buf as one frame.
func (s *Sender) Send(buf *buffer.Buffer) error {
	start := s.now()
	err := s.send(buf)
	observability.RecordSend(s.cfg.Name, time.Since(start), err == nil)
	return err
}

func (s *Sender) send(buf *buffer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		if err := s.dialLocked(); err != nil {
			return err
		}
	}
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(s.now().Add(s.cfg.WriteTimeout))
	}
	s.seq++
	limits := frame.Limits{MaxBodyBytes: s.cfg.MaxFrameBytes}
	if err := frame.WriteFrame(s.conn, s.seq, s.flags, buf.Bytes(), limits); err != nil {
		if errors.Is(err, frame.ErrBodyTooLarge) {
			return err
		}
		s.dropLocked(err)
		return fmt.Errorf("transport: write frame: %w", err)
	}
	s.sent++
	s.sentBytes += uint64(buf.Len())
	return nil
}

func (s *Sender) dialLocked() error {
	if now := s.now(); now.Before(s.nextDial) {
		return fmt.Errorf("%w: %s", ErrBackoff, s.nextDial.Sub(now).Round(time.Millisecond))
	}
	ctx := context.Background()
	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}
	var (
		conn net.Conn
		err  error
	)
	if s.tlsCfg != nil {
		d := &tls.Dialer{Config: s.tlsCfg}
		conn, err = d.DialContext(ctx, "tcp", s.cfg.Addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", s.cfg.Addr)
	}
	if err != nil {
		s.dropLocked(err)
		return fmt.Errorf("transport: dial %s: %w", s.cfg.Addr, err)
	}
	s.conn = conn
	s.failures = 0
	s.logger.Info().Bool("tls", s.tlsCfg != nil).Msg("link up")
	return nil
}

func (s *Sender) dropLocked(cause error) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.failures++
	delay := NextBackoffDelay(s.cfg.Backoff, s.failures, s.rng)
	s.nextDial = s.now().Add(delay)
	s.logger.Warn().Err(cause).Int("failures", s.failures).Dur("redial_in", delay).Msg("link down")
}

// SenderStats reports what a sender has written so far.
type SenderStats struct {
	Connected bool   `json:"connected"`
	Frames    uint64 `json:"frames"`
	Bytes     uint64 `json:"bytes"`
	Failures  int    `json:"failures"`
}

func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SenderStats{Connected: s.conn != nil, Frames: s.sent, Bytes: s.sentBytes, Failures: s.failures}
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
