// internal/app/features/auditlog/routes.go
package auditlog

import (
	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the audit read API (typically at "/api/audit").
// Only roles with the moderator capability may read the trail.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole("moderator", "officer", "admin", "superadmin"))

		pr.Get("/", h.ServeList)
	})

	return r
}
