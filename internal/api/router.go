package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/internal/commands"
	"github.com/thevtm/baker-news/internal/hub"
	"github.com/thevtm/baker-news/internal/store"
)

// HealthCheck reports the health of one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Router sets up API routes
type Router struct {
	handler  *JSONRPCHandler
	commands *commands.Commands
	reader   store.Reader
	hub      *hub.Hub
	checks   []HealthCheck
	logger   *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(cmds *commands.Commands, reader store.Reader, h *hub.Hub, logger *zap.Logger, checks ...HealthCheck) *Router {
	router := &Router{
		handler:  NewJSONRPCHandler(logger),
		commands: cmds,
		reader:   reader,
		hub:      h,
		checks:   checks,
		logger:   logger.With(zap.String("component", "api-router")),
	}

	router.registerMethods()

	return router
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.Use(RequestID(), AccessLog(r.logger))

	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.POST("/rpc", r.handler.Handle)

	engine.GET("/feed/posts", r.postsFeed)
	engine.GET("/feed/posts/:id", r.postFeed)
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	r.handler.RegisterMethod("users.create", r.createUser)

	r.handler.RegisterMethod("posts.create", r.createPost)
	r.handler.RegisterMethod("posts.delete", r.deletePost)
	r.handler.RegisterMethod("posts.vote", r.votePost)
	r.handler.RegisterMethod("posts.get", r.getPost)
	r.handler.RegisterMethod("posts.list", r.listPosts)

	r.handler.RegisterMethod("comments.create", r.createComment)
	r.handler.RegisterMethod("comments.vote", r.voteComment)
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for _, check := range r.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			r.logger.Warn("Health check failed", zap.String("check", check.Name), zap.Error(err))
			continue
		}
		results[check.Name] = "OK"
	}

	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": "baker-news-api",
		"checks":  results,
	})
}
