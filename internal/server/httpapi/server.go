// Package httpapi exposes the auth and table services over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/service"
	"github.com/and161185/tasklist/internal/wire"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	tables  service.TableService
	db      Pinger
	log     *zap.Logger
	metrics *Metrics
	version string
	started time.Time
}

// Deps are the collaborators of New.
type Deps struct {
	Auth     service.AuthService
	Tables   service.TableService
	DB       Pinger              // optional; readiness reports ok when nil
	Log      *zap.Logger         // optional
	Metrics  *Metrics            // optional
	Gatherer prometheus.Gatherer // optional; enables /metrics
	Version  string
}

// New builds the gin engine with all routes registered.
func New(d Deps) (*gin.Engine, *Server) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{
		auth:    d.Auth,
		tables:  d.Tables,
		db:      d.DB,
		log:     d.Log,
		metrics: d.Metrics,
		version: d.Version,
		started: time.Now(),
	}

	r := gin.New()
	r.Use(Recovery(d.Log), RequestLogger(d.Log))
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware())
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, wire.Error{Code: "not_found", Message: "no such route"})
	})

	r.GET("/healthz", s.Liveness)
	r.GET("/readyz", s.Readiness)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authG := r.Group("/auth/v1")
	{
		authG.POST("/signup", s.SignUp)
		authG.POST("/token", s.Token)
		authG.POST("/logout", RequireUser(d.Auth, wire.CodeBadJWT), s.Logout)
		authG.GET("/user", RequireUser(d.Auth, wire.CodeBadJWT), s.GetUser)
	}

	rest := r.Group("/rest/v1", RequireUser(d.Auth, wire.CodeJWTInvalid))
	{
		rest.GET("/profiles/:id", s.GetProfile)
		rest.POST("/profiles", s.InsertProfile)

		rest.GET("/todos", s.ListTodos)
		rest.POST("/todos", s.InsertTodo)
		rest.PATCH("/todos/:id", s.UpdateTodo)
		rest.DELETE("/todos/:id", s.DeleteTodo)
	}
	return r, s
}

// Liveness returns simple alive status.
func (s *Server) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.version})
}

// Readiness pings the database.
func (s *Server) Readiness(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}
