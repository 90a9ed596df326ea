// internal/app/features/deltasync/routes.go
package deltasync

import (
	"net/http"

	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the sync API under /api/sync. streamGuard (typically a rate
// limiter) wraps only the stream endpoint; nil means no guard.
func Routes(h *Handler, sm *auth.SessionManager, streamGuard func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/poll", h.ServePoll)

		pr.Group(func(sr chi.Router) {
			if streamGuard != nil {
				sr.Use(streamGuard)
			}
			sr.Get("/stream", h.ServeStream)
		})
	})

	return r
}
