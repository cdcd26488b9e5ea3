package http

import (
	"net/http"

	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

// Init регистрирует ops-маршруты. metrics может быть nil.
func (r *Router) Init(ops *OpsHandler, metrics http.Handler) {
	r.router.Use(middleware.Recoverer)

	r.router.Get("/healthz", ops.healthz)
	r.router.Get("/readyz", ops.readyz)
	if metrics != nil {
		r.router.Method(http.MethodGet, "/metrics", metrics)
	}

	if ops.dlq != nil {
		r.router.Route("/api/v1", func(v1 chi.Router) {
			v1.Get("/dead-letters", ops.deadLetters)
		})
	}
}
