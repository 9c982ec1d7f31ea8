// internal/app/features/memberships/routes.go
package memberships

import "github.com/go-chi/chi/v5"

// Register adds the membership lifecycle endpoints to the signed-in route
// group.
func Register(r chi.Router, h *Handler) {
	r.Post("/neighborhoods/{neighborhoodID}/join", h.ServeJoin)
	r.Get("/neighborhoods/{neighborhoodID}/members", h.ServeListMembers)
	r.Post("/memberships/{membershipID}/{action}", h.ServeAction)
}
