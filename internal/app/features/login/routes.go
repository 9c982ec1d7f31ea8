// internal/app/features/login/routes.go
package login

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted at /.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.ServeLogin)
	r.Post("/register", h.ServeRegister)
	return r
}
