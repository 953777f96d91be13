// Package server exposes the pipeline engine over HTTP.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pestypig/casimirbot/internal/engine"
)

// Server wires the engine's HTTP surface onto a gin router.
type Server struct {
	eng      *engine.Engine
	gatherer prometheus.Gatherer
	log      *zap.SugaredLogger
}

// New builds a Server. A nil gatherer falls back to the default registry.
func New(eng *engine.Engine, gatherer prometheus.Gatherer, log *zap.SugaredLogger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{eng: eng, gatherer: gatherer, log: log}
}

// Router assembles the full route tree.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	RegisterRoutes(r.Group("/api"), s)
	return r
}

// requestLogger emits one structured line per request.
func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
