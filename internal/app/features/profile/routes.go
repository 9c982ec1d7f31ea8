// internal/app/features/profile/routes.go
package profile

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted at /profile.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeView)
	r.Put("/", h.ServeUpdate)
	return r
}
