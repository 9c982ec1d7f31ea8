// internal/app/features/posts/routes.go
package posts

import "github.com/go-chi/chi/v5"

// Register adds the bulletin-board endpoints to the signed-in route group.
func Register(r chi.Router, h *Handler) {
	r.Post("/neighborhoods/{neighborhoodID}/posts", h.ServeCreate)
	r.Get("/neighborhoods/{neighborhoodID}/posts", h.ServeList)
	r.Delete("/posts/{postID}", h.ServeDelete)
}
