package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for POS orchestration use-cases.
// Keeping only application dependency here preserves clean adapter boundaries.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers M59 HTTP routes and middleware stack.
// Centralizing routes here ensures consistent error behavior across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/pos/v1", func(r chi.Router) {
		r.Post("/orders", handler.submitOrder)
		r.Get("/orders/{order_id}/status", handler.orderStatus)
		r.Post("/locations/{location_id}/providers/{provider}/sync", handler.syncMenu)
		r.Post("/config/reload", handler.reloadConfig)
	})

	r.Post("/webhooks/{provider}", handler.ingestWebhook)

	return r
}
