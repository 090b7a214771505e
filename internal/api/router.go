// Package api exposes the outline manager over REST. Every route is scoped
// by a caller identity segment, /users/{userID}/nodes, which is passed to the
// optional authorization callback and otherwise unused.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/nainya/outlinestore/internal/logger"
	"github.com/nainya/outlinestore/internal/metrics"
	"github.com/nainya/outlinestore/pkg/outline"
)

// Options configure the REST router. All fields are optional.
type Options struct {
	// Auth gates every non-GET route. Nil leaves all routes open.
	Auth        AuthFunc
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
}

// Router creates and configures the HTTP router
type Router struct {
	mgr      *outline.Manager
	auth     AuthFunc
	log      *logger.Logger
	metrics  *metrics.Metrics
	origins  []string
	validate *validator.Validate
}

// NewRouter creates a new router instance
func NewRouter(mgr *outline.Manager, opts Options) *Router {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Router{
		mgr:      mgr,
		auth:     opts.Auth,
		log:      log.Component("http"),
		metrics:  opts.Metrics,
		origins:  origins,
		validate: validator.New(),
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.log))
	if rt.metrics != nil {
		router.Use(requestMetrics(rt.metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)

	router.Route("/users/{userID}/nodes", func(r chi.Router) {
		r.Use(rt.authorize)

		r.Post("/", rt.createNode)
		r.Get("/{uuid}", rt.getNode)
		r.Put("/{uuid}", rt.updateNode)
		r.Delete("/{uuid}", rt.deleteNode)

		r.Post("/{uuid}/move-up", rt.moveUp)
		r.Post("/{uuid}/move-down", rt.moveDown)
		r.Post("/{uuid}/indent", rt.indent)
		r.Post("/{uuid}/unindent", rt.unindent)
		r.Post("/{uuid}/add", rt.addNode)
		r.Get("/{uuid}/children", rt.children)
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
