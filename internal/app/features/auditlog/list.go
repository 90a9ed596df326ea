// internal/app/features/auditlog/list.go
package auditlog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var knownActions = map[string]bool{
	audit.ActionEnlist:        true,
	audit.ActionPoolToSquad:   true,
	audit.ActionSquadToSquad:  true,
	audit.ActionSquadToPool:   true,
	audit.ActionKickFromPool:  true,
	audit.ActionKickFromSquad: true,
	audit.ActionAssignRole:    true,
}

// ServeList handles GET /api/audit. Results are newest first; pass the
// returned nextCursor as ?cursor= for the following page.
//
// Filters: activity, actor (ids), action, from and to (RFC3339 or
// YYYY-MM-DD; a bare "to" date covers the whole day), limit.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Read(), h.Log, "audit log list")
	defer cancel()

	page, err := h.Query(ctx, filter)
	if err != nil {
		if errors.Is(err, audit.ErrBadCursor) {
			apperr.WriteJSON(w, apperr.Validation("invalid cursor"))
			return
		}
		h.Log.Error("failed to query audit events", zap.Error(err))
		apperr.WriteJSON(w, apperr.Internal(err, "audit query failed"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(page)
}

func parseFilter(r *http.Request) (audit.QueryFilter, error) {
	q := r.URL.Query()
	f := audit.QueryFilter{After: strings.TrimSpace(q.Get("cursor"))}

	if v := strings.TrimSpace(q.Get("activity")); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return f, apperr.Validation("invalid activity id")
		}
		f.ActivityID = &id
	}
	if v := strings.TrimSpace(q.Get("actor")); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return f, apperr.Validation("invalid actor id")
		}
		f.ActorID = &id
	}
	if v := strings.TrimSpace(q.Get("action")); v != "" {
		if !knownActions[v] {
			return f, apperr.Validation("unknown action %q", v)
		}
		f.Action = v
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, _, err := parseTime(v)
		if err != nil {
			return f, apperr.Validation("from must be RFC3339 or YYYY-MM-DD")
		}
		f.StartTime = &t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, dateOnly, err := parseTime(v)
		if err != nil {
			return f, apperr.Validation("to must be RFC3339 or YYYY-MM-DD")
		}
		if dateOnly {
			// End of day
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		f.EndTime = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, apperr.Validation("limit must be a positive number")
		}
		f.Limit = n
	}
	return f, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	return t, true, err
}
