// internal/app/features/roster/handler.go
package roster

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/authz"
	"github.com/dalemusser/rosterhub/internal/app/system/inputval"
	"github.com/dalemusser/rosterhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxBody caps a move request body.
const maxBody = 256 << 10

// Handler serves the roster read and move endpoints.
type Handler struct {
	Svc *assign.Service
	Log *zap.Logger
}

// NewHandler constructs a roster Handler.
func NewHandler(svc *assign.Service, logger *zap.Logger) *Handler {
	return &Handler{Svc: svc, Log: logger}
}

// scope resolves the activity from the URL and the actor from the session.
func (h *Handler) scope(r *http.Request) (assign.Scope, error) {
	activityID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "activityID"))
	if err != nil {
		return assign.Scope{}, apperr.Validation("invalid activity id")
	}
	role, name, userID, _ := authz.UserCtx(r)
	return assign.Scope{
		Actor: assign.Actor{
			ID:        userID,
			Name:      name,
			Moderator: authz.IsModeratorRole(role),
		},
		ActivityID: activityID,
		IfMatch:    r.Header.Get("If-Match"),
	}, nil
}

// ServeRoster handles GET /api/activities/{activityID}/roster.
func (h *Handler) ServeRoster(w http.ResponseWriter, r *http.Request) {
	activityID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "activityID"))
	if err != nil {
		h.fail(w, r, apperr.Validation("invalid activity id"))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "roster read")
	defer cancel()

	view, err := h.Svc.Roster(ctx, activityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("ETag", view.Version)
	if match := r.Header.Get("If-None-Match"); match != "" && match == view.Version {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// write runs one mutation with the commit timeout and writes the result.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, op string, fn func(r *http.Request, sc assign.Scope) (assign.Result, error)) {
	sc, err := h.scope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Commit(), h.Log, op)
	defer cancel()

	res, err := fn(r.WithContext(ctx), sc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Version != "" {
		w.Header().Set("ETag", res.Version)
	}
	writeJSON(w, http.StatusOK, res)
}

// fail writes err as a JSON envelope. Internal causes are logged, never sent.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.Log.Error("roster request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	apperr.WriteJSON(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeItems accepts either a single item body or {"moves":[...]} and
// validates every item.
func decodeItems[T any](r *http.Request) ([]T, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, apperr.Validation("could not read request body")
	}
	if len(body) > maxBody {
		return nil, apperr.Validation("request body too large")
	}

	var env struct {
		Moves []T `json:"moves"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Validation("invalid JSON body")
	}
	items := env.Moves
	if items == nil {
		var one T
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, apperr.Validation("invalid JSON body")
		}
		items = []T{one}
	}
	if len(items) > assign.MaxBatch {
		return nil, apperr.Validation("at most %d moves per request", assign.MaxBatch)
	}
	for i := range items {
		if err := inputval.Struct(items[i]); err != nil {
			var e *apperr.Error
			if len(items) > 1 && errors.As(err, &e) {
				return nil, apperr.Validation("moves[%d]: %s", i, e.Message)
			}
			return nil, err
		}
	}
	return items, nil
}

func decodeOne[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&v); err != nil {
		return v, apperr.Validation("invalid JSON body")
	}
	return v, inputval.Struct(v)
}

func oid(hex string) primitive.ObjectID {
	id, _ := primitive.ObjectIDFromHex(hex)
	return id
}
