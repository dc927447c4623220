package sinks

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
)

// LogSink writes a one-line summary of every packet to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink logs to logger, or the global logger when nil.
func NewLogSink(logger *zerolog.Logger, endpoint schema.Endpoint) *LogSink {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &LogSink{logger: l.With().Str("endpoint", endpoint.String()).Logger()}
}

func (s *LogSink) Handle(p *protocol.Packet) error {
	s.logger.Info().
		Str("type", p.MessageType.Type.String()).
		Uint64("timestamp", p.Timestamp).
		Strs("endpoints", endpointNames(p.MessageType.Endpoints)).
		Int("bytes", len(p.PayloadBytes())).
		Msg("packet")
	return nil
}

func (s *LogSink) Close() error { return nil }
