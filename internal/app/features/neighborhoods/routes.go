// internal/app/features/neighborhoods/routes.go
package neighborhoods

import "github.com/go-chi/chi/v5"

// Register adds the neighborhood endpoints to the signed-in route group.
// Per-action authorization happens in the handlers.
func Register(r chi.Router, h *Handler) {
	r.Get("/neighborhoods", h.ServeList)
	r.Post("/neighborhoods", h.ServeCreate)
	r.Get("/neighborhoods/{neighborhoodID}", h.ServeGet)
	r.Put("/neighborhoods/{neighborhoodID}/policy", h.ServeUpdatePolicy)
}
