package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/internal/auth"
	"github.com/thoughtforge/thoughtsync/internal/clock"
	"github.com/thoughtforge/thoughtsync/internal/generation"
	"github.com/thoughtforge/thoughtsync/internal/persistence"
	"github.com/thoughtforge/thoughtsync/internal/realtime"
	"github.com/thoughtforge/thoughtsync/internal/syncer"
	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

const identityKey = "identity"

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the API exposes. Broker and Presence may be nil.
type Deps struct {
	Facade    *persistence.Facade
	Sync      *syncer.Engine
	Generator *generation.Service
	Verifier  auth.Verifier
	Broker    realtime.Broker
	Presence  realtime.PresenceChannel
	Clock     clock.Clock
	Realtime  config.RealtimeConfig
	Health    map[string]HealthCheck
}

// Router sets up API routes
type Router struct {
	handler *JSONRPCHandler
	deps    Deps
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Deps, logger *zap.Logger) *Router {
	if deps.Verifier == nil {
		deps.Verifier = auth.Disabled{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	logger = logging.OrNop(logger)
	router := &Router{
		handler: NewJSONRPCHandler(logger),
		deps:    deps,
		logger:  logger.With(zap.String("component", "api-router")),
	}

	router.registerMethods()

	return router
}

// Handler exposes the JSON-RPC dispatcher.
func (r *Router) Handler() *JSONRPCHandler {
	return r.handler
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	authed := engine.Group("/", r.authenticate)
	authed.POST("/", r.handler.Handle)
	authed.GET("/live/:table", r.liveHandler)
}

// authenticate resolves the bearer token. Requests without one proceed
// anonymously; a rejected token is a 401.
func (r *Router) authenticate(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("access_token")
	}
	id, err := r.deps.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		r.logger.Debug("rejected token", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(auth.Identity); ok {
			return id
		}
	}
	return auth.Anonymous
}

// registerMethods registers all API methods
func (r *Router) registerMethods() {
	thoughts := &thoughtsAPI{facade: r.deps.Facade}
	r.handler.RegisterMethod("thoughts.save", thoughts.Save)
	r.handler.RegisterMethod("thoughts.list", thoughts.List)
	r.handler.RegisterMethod("thoughts.delete", thoughts.Delete)
	r.handler.RegisterMethod("thoughts.view", thoughts.View)
	r.handler.RegisterMethod("thoughts.like", thoughts.Like)
	r.handler.RegisterMethod("thoughts.share", thoughts.Share)

	favorites := &favoritesAPI{facade: r.deps.Facade}
	r.handler.RegisterMethod("favorites.add", favorites.Add)
	r.handler.RegisterMethod("favorites.remove", favorites.Remove)
	r.handler.RegisterMethod("favorites.list", favorites.List)
	r.handler.RegisterMethod("favorites.is", favorites.Is)
	r.handler.RegisterMethod("favorites.reorder", favorites.Reorder)

	r.handler.RegisterMethod("stats.get", thoughts.Stats)

	notifications := &notificationsAPI{facade: r.deps.Facade}
	r.handler.RegisterMethod("notifications.list", notifications.List)
	r.handler.RegisterMethod("notifications.mark_read", notifications.MarkRead)
	r.handler.RegisterMethod("notifications.unread", notifications.Unread)

	if r.deps.Sync != nil {
		r.handler.RegisterMethod("sync.migrate", (&syncAPI{engine: r.deps.Sync}).Migrate)
	}
	if r.deps.Generator != nil {
		r.handler.RegisterMethod("generate", (&generateAPI{service: r.deps.Generator}).Generate)
	}
	if r.deps.Presence != nil {
		presence := &presenceAPI{channel: r.deps.Presence, clock: r.deps.Clock}
		r.handler.RegisterMethod("presence.heartbeat", presence.Heartbeat)
		r.handler.RegisterMethod("presence.leave", presence.Leave)
		r.handler.RegisterMethod("presence.list", presence.List)
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK
	for name, check := range r.deps.Health {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "OK"
	}

	mode := "local"
	if r.deps.Facade != nil && r.deps.Facade.Configured() {
		mode = "remote"
	}
	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": "thoughtsync-api",
		"mode":    mode,
		"checks":  checks,
	})
}
