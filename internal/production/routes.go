package production

import "github.com/go-chi/chi/v5"

// MountRoutes registers production order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Get("/{id}/progress", h.progress)
	r.Post("/{id}/status", h.updateStatus)
	r.Post("/{id}/items", h.updateItems)
}
