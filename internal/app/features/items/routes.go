// internal/app/features/items/routes.go
package items

import "github.com/go-chi/chi/v5"

// Register adds the lending-library endpoints to the signed-in route group.
func Register(r chi.Router, h *Handler) {
	r.Post("/neighborhoods/{neighborhoodID}/items", h.ServeCreate)
	r.Get("/neighborhoods/{neighborhoodID}/items", h.ServeList)
	r.Delete("/items/{itemID}", h.ServeDelete)
}
