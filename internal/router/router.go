package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	prommetrics "github.com/jwalitptl/rch-registry/internal/handler/prometheus"
	"github.com/jwalitptl/rch-registry/internal/middleware"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

// Handler registers REST routes under /api
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// RootHandler registers routes outside /api, such as the websocket endpoint
type RootHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type RouterConfig struct {
	Mode        string
	CORSConfig  middleware.CORSConfig
	RateLimit   *middleware.RateLimiterConfig
	MaxBodySize int64
}

type Router struct {
	engine   *gin.Engine
	config   RouterConfig
	api      []Handler
	root     []RootHandler
	gatherer prometheus.Gatherer
	log      zerolog.Logger
}

func NewRouter(config RouterConfig, log zerolog.Logger, m *metrics.Metrics, gatherer prometheus.Gatherer) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Metrics(m),
		middleware.CORS(config.CORSConfig),
	)

	return &Router{
		engine:   engine,
		config:   config,
		gatherer: gatherer,
		log:      log,
	}
}

// Register adds handlers whose routes live under /api
func (r *Router) Register(handlers ...Handler) *Router {
	r.api = append(r.api, handlers...)
	return r
}

// RegisterRoot adds handlers mounted at the server root
func (r *Router) RegisterRoot(handlers ...RootHandler) *Router {
	r.root = append(r.root, handlers...)
	return r
}

// Setup mounts every registered handler. Call once, after registration.
func (r *Router) Setup() {
	api := r.engine.Group("/api")
	api.Use(middleware.ErrorHandler(r.log), middleware.BodyLimit(r.config.MaxBodySize))
	if r.config.RateLimit != nil {
		api.Use(middleware.NewRateLimiter(*r.config.RateLimit).RateLimit())
	}
	for _, h := range r.api {
		h.RegisterRoutes(api)
	}

	for _, h := range r.root {
		h.RegisterRoutes(r.engine)
	}

	if r.gatherer != nil {
		prommetrics.New(r.gatherer).RegisterRoutes(r.engine)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
