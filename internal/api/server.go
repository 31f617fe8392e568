// Package api is the HTTP surface over the query engine: query (JSON or
// SSE), PDF ingestion, health, and log inspection.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/clearpath-ai/clearpath-rag/internal/config"
	"github.com/clearpath-ai/clearpath-rag/internal/ingest"
	"github.com/clearpath-ai/clearpath-rag/internal/pipeline"
	"github.com/clearpath-ai/clearpath-rag/internal/querylog"
)

// Server bundles the engine and its HTTP handlers.
type Server struct {
	cfg      *config.Config
	engine   *pipeline.Engine
	ingestor *ingest.Ingestor
	log      *querylog.Log
}

// NewServer creates the HTTP layer over the shared engine components.
func NewServer(cfg *config.Config, engine *pipeline.Engine, ingestor *ingest.Ingestor, log *querylog.Log) *Server {
	return &Server{cfg: cfg, engine: engine, ingestor: ingestor, log: log}
}

// Router builds the gin handler with CORS and all API routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.Server.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = s.cfg.Server.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsCfg))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/query", s.handleQuery)
		apiGroup.POST("/ingest", s.handleIngest)
		apiGroup.GET("/health", s.handleHealth)
		apiGroup.GET("/debug", s.handleDebug)
		apiGroup.GET("/logs", s.handleLogs)
	}

	return r
}

// ListenAddr formats the configured bind address.
func (s *Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// HTTPServer wraps the router in an http.Server with sane timeouts.
// Write timeout is long because SSE responses stay open for the full
// generation.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.ListenAddr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}
}
