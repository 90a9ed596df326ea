// internal/app/features/roster/routes.go
package roster

import (
	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the roster API under /api/activities. Any signed-in user may
// read a roster; the Assignment Service rejects writes from non-moderators.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/{activityID}/roster", h.ServeRoster)

		pr.Post("/{activityID}/enlist", h.ServeEnlist)
		pr.Post("/{activityID}/moves/pool-to-squad", h.ServePoolToSquad)
		pr.Post("/{activityID}/moves/squad-to-squad", h.ServeSquadToSquad)
		pr.Post("/{activityID}/moves/squad-to-pool", h.ServeSquadToPool)
		pr.Post("/{activityID}/kicks/pool", h.ServeKickFromPool)
		pr.Post("/{activityID}/kicks/squad", h.ServeKickFromSquad)
		pr.Post("/{activityID}/roles", h.ServeAssignRole)
	})

	return r
}
