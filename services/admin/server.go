// Package admin exposes a small HTTP API for operators: document and grant
// listings, grant revocation, and the audit trail. It is meant to be bound
// to an internal interface; the wire protocol stays the only client surface.
package admin

import (
	"net/http"
	"time"

	"docvault/config"
	"docvault/pkg/delegation"
	"docvault/pkg/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server represents the admin API server
type Server struct {
	router     *gin.Engine
	repo       *repository.Repository
	delegation *delegation.Engine
}

// NewServer creates a new admin server instance
func NewServer(repo *repository.Repository, del *delegation.Engine, cfg config.AdminConfig) *Server {
	s := &Server{
		router:     gin.Default(),
		repo:       repo,
		delegation: del,
	}

	s.setupRoutes(cfg)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(cfg config.AdminConfig) {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/documents", s.listDocuments)
		v1.GET("/grants", s.listGrants)
		v1.DELETE("/grants", s.revokeDocumentGrants)
		v1.DELETE("/grants/:id", s.revokeGrant)
		v1.GET("/audit-records", s.listAuditRecords)
	}
}

// Start runs the admin server on addr
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}

// Router returns the underlying gin engine, used by tests and by callers
// that manage the http.Server themselves.
func (s *Server) Router() http.Handler {
	return s.router
}

// healthCheck returns the server health status
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "docvault-admin"})
}
