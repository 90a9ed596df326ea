// internal/app/features/roster/moves.go
package roster

import (
	"net/http"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/system/inputval"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Request payloads. Ids are hex ObjectIDs; "team" is the wire name for a squad.

type enlistRequest struct {
	UserID  string   `json:"userId" validate:"required_without=UserIDs,omitempty,objectid"`
	UserIDs []string `json:"userIds" validate:"omitempty,max=200,dive,objectid"`
}

type poolToSquadItem struct {
	UserID string `json:"userId" validate:"required,objectid"`
	TeamID string `json:"teamId" validate:"required,objectid"`
	Role   string `json:"role" validate:"max=32"`
}

type squadToSquadItem struct {
	UserID     string `json:"userId" validate:"required,objectid"`
	FromTeamID string `json:"fromTeamId" validate:"required,objectid"`
	TeamID     string `json:"teamId" validate:"required,objectid"`
}

type memberItem struct {
	UserID string `json:"userId" validate:"required,objectid"`
}

type squadKickItem struct {
	UserID string `json:"userId" validate:"required,objectid"`
	TeamID string `json:"teamId" validate:"required,objectid"`
}

type roleRequest struct {
	TeamID  string   `json:"teamId" validate:"required,objectid"`
	UserIDs []string `json:"userIds" validate:"required,min=1,max=200,dive,objectid"`
	Role    string   `json:"role" validate:"max=32"`
}

// ServeEnlist handles POST /enlist.
func (h *Handler) ServeEnlist(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "enlist", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		req, err := decodeOne[enlistRequest](r)
		if err != nil {
			return assign.Result{}, err
		}
		hexes := req.UserIDs
		if req.UserID != "" {
			hexes = append([]string{req.UserID}, hexes...)
		}
		ids, err := inputval.ObjectIDs(hexes)
		if err != nil {
			return assign.Result{}, err
		}
		return h.Svc.Enlist(r.Context(), sc, ids)
	})
}

// ServePoolToSquad handles POST /moves/pool-to-squad.
func (h *Handler) ServePoolToSquad(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "pool-to-squad", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		items, err := decodeItems[poolToSquadItem](r)
		if err != nil {
			return assign.Result{}, err
		}
		moves := make([]assign.PoolMove, len(items))
		for i, it := range items {
			moves[i] = assign.PoolMove{MemberID: oid(it.UserID), SquadID: oid(it.TeamID), Role: it.Role}
		}
		return h.Svc.PoolToSquad(r.Context(), sc, moves)
	})
}

// ServeSquadToSquad handles POST /moves/squad-to-squad.
func (h *Handler) ServeSquadToSquad(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "squad-to-squad", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		items, err := decodeItems[squadToSquadItem](r)
		if err != nil {
			return assign.Result{}, err
		}
		moves := make([]assign.SquadMove, len(items))
		for i, it := range items {
			moves[i] = assign.SquadMove{
				MemberID:      oid(it.UserID),
				SourceSquadID: oid(it.FromTeamID),
				TargetSquadID: oid(it.TeamID),
			}
		}
		return h.Svc.MoveFromSquadToSquad(r.Context(), sc, moves)
	})
}

// ServeSquadToPool handles POST /moves/squad-to-pool.
func (h *Handler) ServeSquadToPool(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "squad-to-pool", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		items, err := decodeItems[memberItem](r)
		if err != nil {
			return assign.Result{}, err
		}
		return h.Svc.MoveFromSquadToPool(r.Context(), sc, memberIDs(items))
	})
}

// ServeKickFromPool handles POST /kicks/pool.
func (h *Handler) ServeKickFromPool(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "kick-from-pool", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		items, err := decodeItems[memberItem](r)
		if err != nil {
			return assign.Result{}, err
		}
		return h.Svc.KickFromPool(r.Context(), sc, memberIDs(items))
	})
}

// ServeKickFromSquad handles POST /kicks/squad.
func (h *Handler) ServeKickFromSquad(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "kick-from-squad", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		items, err := decodeItems[squadKickItem](r)
		if err != nil {
			return assign.Result{}, err
		}
		kicks := make([]assign.SquadKick, len(items))
		for i, it := range items {
			kicks[i] = assign.SquadKick{MemberID: oid(it.UserID), SquadID: oid(it.TeamID)}
		}
		return h.Svc.KickFromSquad(r.Context(), sc, kicks)
	})
}

// ServeAssignRole handles POST /roles.
func (h *Handler) ServeAssignRole(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, "assign-role", func(r *http.Request, sc assign.Scope) (assign.Result, error) {
		req, err := decodeOne[roleRequest](r)
		if err != nil {
			return assign.Result{}, err
		}
		ids, err := inputval.ObjectIDs(req.UserIDs)
		if err != nil {
			return assign.Result{}, err
		}
		return h.Svc.AssignRole(r.Context(), sc, oid(req.TeamID), ids, req.Role)
	})
}

func memberIDs(items []memberItem) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(items))
	for i, it := range items {
		ids[i] = oid(it.UserID)
	}
	return ids
}
