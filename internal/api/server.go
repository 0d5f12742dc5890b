// Package api implements the HTTP/JSON surface over a Supervisor:
// mutate cells, drive playback, and stream graph events over
// WebSocket, per SPEC_FULL.md §6.
//
// Grounded on backend/pkg/server/routes.go's router assembly (gin.New,
// gzip.Gzip(gzip.DefaultCompression) middleware, conditional debug vs
// release mode) and src/node/handlers.go's handler shape
// (ShouldBindJSON, gin.H error envelopes). The WebSocket event stream
// is grounded on
// go/internal/application/observer/websocket_observer.go's
// WebSocketHub (register/unregister/broadcast channels funneling into
// a per-client send buffer), generalized from "broadcast workflow
// execution events" to "broadcast cgraph.Event".
package api

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/chidori-ai/chidori/internal/analyzer"
	"github.com/chidori-ai/chidori/internal/cell"
	"github.com/chidori-ai/chidori/internal/cgraph"
	"github.com/chidori-ai/chidori/internal/supervisor"
)

// Server wires a Supervisor and its ExecutionGraph up to gin routes.
type Server struct {
	router     *gin.Engine
	supervisor *supervisor.Supervisor
	graph      *cgraph.Graph
	analyzers  *analyzer.Registry
	hub        *Hub
	jwtSigning string
	debug      bool
}

// Option configures a Server at construction.
type Option func(*Server)

// WithJWT enables bearer-token authentication on mutating routes,
// signed with signingKey.
func WithJWT(signingKey string) Option {
	return func(s *Server) { s.jwtSigning = signingKey }
}

// WithDebug switches gin to debug mode (verbose request logging,
// no route caching).
func WithDebug() Option {
	return func(s *Server) { s.debug = true }
}

// NewServer builds a Server and registers its routes, including a Hub
// subscribed to graph as a cgraph.Observer so every published state
// reaches connected WebSocket clients.
func NewServer(sup *supervisor.Supervisor, graph *cgraph.Graph, analyzers *analyzer.Registry, opts ...Option) *Server {
	s := &Server{supervisor: sup, graph: graph, analyzers: analyzers}
	for _, opt := range opts {
		opt(s)
	}

	if s.debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger())
	s.router.Use(gzip.Gzip(gzip.DefaultCompression))

	s.hub = NewHub()
	go s.hub.Run()
	if err := graph.Register(s.hub); err != nil {
		log.Warn().Err(err).Msg("failed to register websocket hub as a graph observer")
	}

	s.routes()
	return s
}

// Handler returns the underlying http.Handler, for use with
// http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	v1 := s.router.Group("/api/v1")

	v1.GET("/state", s.handleGetHead)
	v1.GET("/state/:chronology_id", s.handleGetState)
	v1.GET("/state/:chronology_id/history", s.handleGetHistory)
	v1.GET("/events", s.handleEventStream)

	mutating := v1.Group("")
	if s.jwtSigning != "" {
		mutating.Use(RequireBearer(s.jwtSigning))
	}
	mutating.POST("/cells", s.handleMutateCell)
	mutating.DELETE("/cells/:id", s.handleRemoveCell)
	mutating.POST("/cells/:id/invoke", s.handleInvokeCell)
	mutating.POST("/playback/pause", s.handlePause)
	mutating.POST("/playback/resume", s.handleResume)
	mutating.POST("/playback/step", s.handleStepOnce)
	mutating.POST("/revert/:chronology_id", s.handleRevert)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("handled request")
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// cellRequest is the wire shape accepted by POST /cells: enough to
// build a cell.OperationNode. Its Signature is derived server-side by
// the caller-supplied analyzer registry, not accepted from the client,
// since an externally supplied signature could desynchronize from the
// cell's actual source.
type cellRequest struct {
	ID       string          `json:"id" binding:"required"`
	Kind     cell.Kind       `json:"kind" binding:"required"`
	Name     string          `json:"name"`
	Language cell.Language   `json:"language"`
	Source   string          `json:"source"`
	Trigger  cell.TriggerMode `json:"trigger"`
}
