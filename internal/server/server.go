package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/telectl/internal/auth"
	"github.com/danmuck/telectl/internal/observability"
	"github.com/danmuck/telectl/internal/protocol"
	"github.com/danmuck/telectl/internal/protocol/schema"
	"github.com/danmuck/telectl/internal/sinks"
)

// Options wires the status API to a running node. Nil funcs disable the
// routes that need them.
type Options struct {
	Name        string
	Kind        string
	CorsOrigins []string
	Catalog     *schema.Catalog
	Codec       protocol.Codec
	// Status returns the JSON body for /stats.
	Status func() any
	// Recent returns clones of recent packets seen by a local endpoint.
	Recent func(ep schema.Endpoint) []*protocol.Packet
	// Archive returns the newest archived rows.
	Archive func(ctx context.Context, limit int) ([]sinks.Record, error)
	// Auth, when set, guards every route except /health and /metrics.
	Auth   auth.Validator
	Logger *zerolog.Logger
}

type Server struct {
	opts      Options
	engine    *gin.Engine
	startedAt time.Time
}

func New(opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = schema.Default()
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(opts.Name))
	if len(opts.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: opts.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if opts.Auth != nil {
		r.Use(auth.Middleware(opts.Auth, "/health", "/metrics"))
	}
	s := &Server{opts: opts, engine: r, startedAt: time.Now()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() *gin.Engine { return s.engine }

// ListenAndServe serves addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdown)
		if serveErr := <-errc; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return err
	}
}

func (s *Server) registerRoutes() {
	observability.RegisterMetrics()
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/health", s.health)
	s.engine.GET("/stats", s.stats)
	s.engine.GET("/packets", s.packets)
	s.engine.GET("/archive", s.archive)
}
