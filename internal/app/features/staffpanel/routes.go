// internal/app/features/staffpanel/routes.go
package staffpanel

import "github.com/go-chi/chi/v5"

// Routes returns the subrouter mounted at /staff. Every route sits behind
// RequireStaff; RequireSignedIn is applied by the caller.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.RequireStaff)
	r.Get("/", h.ServePanel)
	r.Get("/users", h.ServeUsers)
	r.Get("/audit", h.ServeAuditLog)
	r.Post("/impersonate/{userID}", h.ServeImpersonate)
	r.Post("/impersonate/exit", h.ServeExitImpersonation)
	return r
}
