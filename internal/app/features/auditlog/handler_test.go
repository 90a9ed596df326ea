package auditlog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/features/auditlog"
	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/store/memory"
	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"github.com/dalemusser/rosterhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// seedTrail commits n enlist events to a fresh memory store.
func seedTrail(t *testing.T, n int) (*memory.Store, primitive.ObjectID) {
	t.Helper()
	st := memory.New()
	a := models.Activity{ID: primitive.NewObjectID(), UpdatedAt: base}
	st.PutActivity(a)
	readAt := base
	for i := 1; i <= n; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		action := audit.ActionEnlist
		if i%2 == 0 {
			action = audit.ActionKickFromPool
		}
		ev := audit.Event{ID: primitive.NewObjectID(), Timestamp: at, Action: action, ActivityID: a.ID, Count: 1}
		if _, err := st.Commit(context.Background(), assign.Commit{ActivityID: a.ID, ReadAt: readAt, At: at, Audit: ev}); err != nil {
			t.Fatalf("seed commit: %v", err)
		}
		readAt = at
	}
	return st, a.ID
}

func router(t *testing.T, st *memory.Store, user testutil.TestUser) http.Handler {
	t.Helper()
	sm, err := auth.NewSessionManager(auth.RandomKey(), "", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	r := chi.NewRouter()
	r.Use(testutil.UserMiddleware(user))
	r.Mount("/api/audit", auditlog.Routes(auditlog.NewHandler(st.QueryAudit, zap.NewNop()), sm))
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", target, nil))
	return rec
}

func TestServeList_Pages(t *testing.T) {
	st, activityID := seedTrail(t, 5)
	h := router(t, st, testutil.ModeratorUser())

	rec := get(h, "/api/audit/?activity="+activityID.Hex()+"&limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page audit.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Events) != 3 || page.NextCursor == "" {
		t.Fatalf("first page: %d events, cursor %q", len(page.Events), page.NextCursor)
	}
	if !page.Events[0].Timestamp.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("newest first: got %v", page.Events[0].Timestamp)
	}

	rec = get(h, "/api/audit/?activity="+activityID.Hex()+"&limit=3&cursor="+page.NextCursor)
	var next audit.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(next.Events) != 2 || next.NextCursor != "" {
		t.Errorf("second page: %d events, cursor %q", len(next.Events), next.NextCursor)
	}
}

func TestServeList_Filters(t *testing.T) {
	st, _ := seedTrail(t, 4)
	h := router(t, st, testutil.ModeratorUser())

	tests := []struct {
		query string
		want  int
	}{
		{"action=" + audit.ActionKickFromPool, 2},
		{"from=" + base.Add(150*time.Second).Format(time.RFC3339), 2},
		{"to=" + base.Add(150*time.Second).Format(time.RFC3339), 2},
		{"to=2024-06-01", 4},
		{"activity=" + primitive.NewObjectID().Hex(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := get(h, "/api/audit/?"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var page audit.Page
			if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(page.Events) != tt.want {
				t.Errorf("got %d events, want %d", len(page.Events), tt.want)
			}
		})
	}
}

func TestServeList_BadInput(t *testing.T) {
	st, _ := seedTrail(t, 1)
	h := router(t, st, testutil.ModeratorUser())

	for _, q := range []string{"activity=nope", "action=teleport", "from=tomorrow", "limit=-4", "cursor=garbage"} {
		if rec := get(h, "/api/audit/?"+q); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestServeList_Forbidden(t *testing.T) {
	st, _ := seedTrail(t, 1)
	h := router(t, st, testutil.MemberUser())

	if rec := get(h, "/api/audit/"); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
