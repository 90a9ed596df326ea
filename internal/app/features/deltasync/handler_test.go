package deltasync_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/app/features/deltasync"
	"github.com/dalemusser/rosterhub/internal/app/store/memory"
	"github.com/dalemusser/rosterhub/internal/app/system/auditlog"
	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/dalemusser/rosterhub/internal/app/system/ratelimit"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"github.com/dalemusser/rosterhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type testEnv struct {
	store    *memory.Store
	assign   *assign.Service
	activity models.Activity
	squad    models.Squad
	member   models.Member
}

func newEnv() *testEnv {
	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	st := memory.New()
	e := &testEnv{store: st}
	e.activity = models.Activity{ID: primitive.NewObjectID(), Name: "War", Status: models.ActivityOpen, UpdatedAt: past}
	e.squad = models.Squad{ID: primitive.NewObjectID(), ActivityID: e.activity.ID, Name: "Alpha", UpdatedAt: past}
	e.member = models.Member{ID: primitive.NewObjectID(), DisplayName: "ann", Status: models.MemberActive, UpdatedAt: past}
	st.PutActivity(e.activity)
	st.PutSquad(e.squad)
	st.PutMember(e.member)
	st.PutMembership(models.SquadMembership{ID: primitive.NewObjectID(), ActivityID: e.activity.ID, MemberID: e.member.ID, UpdatedAt: past})
	e.assign = assign.New(st, auditlog.New(zap.NewNop(), auditlog.Config{}), zap.NewNop())
	return e
}

func (e *testEnv) move(t *testing.T) {
	t.Helper()
	sc := assign.Scope{Actor: assign.Actor{ID: primitive.NewObjectID(), Moderator: true}, ActivityID: e.activity.ID}
	if _, err := e.assign.MoveFromPoolToSquad(context.Background(), sc, []primitive.ObjectID{e.member.ID}, e.squad.ID, ""); err != nil {
		t.Fatalf("move: %v", err)
	}
}

func (e *testEnv) router(t *testing.T, guard func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	sm, err := auth.NewSessionManager(auth.RandomKey(), "", "", false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	h := deltasync.NewHandler(delta.NewService(e.store, logger), delta.Options{
		Interval:       20 * time.Millisecond,
		HeartbeatEvery: time.Hour,
		MaxDuration:    2 * time.Second,
	}, logger)

	r := chi.NewRouter()
	r.Use(testutil.UserMiddleware(testutil.MemberUser()))
	r.Mount("/api/sync", deltasync.Routes(h, sm, guard))
	return r
}

func TestServePoll_RequiresSince(t *testing.T) {
	e := newEnv()
	h := e.router(t, nil)

	for _, q := range []string{"", "?since=yesterday"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sync/poll"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("poll%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestServePoll_ReturnsFeeds(t *testing.T) {
	e := newEnv()
	h := e.router(t, nil)
	since := time.Now().UTC().Add(-time.Minute)
	e.move(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sync/poll?since="+since.Format(time.RFC3339Nano), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"members", "activities", "announcements", "squads", "memberships", "latestTimestamp"} {
		if _, ok := body[k]; !ok {
			t.Errorf("response missing %q", k)
		}
	}
	var acts struct {
		Updated []struct {
			ID string `json:"id"`
		} `json:"updated"`
	}
	if err := json.Unmarshal(body["activities"], &acts); err != nil {
		t.Fatalf("decode activities: %v", err)
	}
	if len(acts.Updated) != 1 || acts.Updated[0].ID != e.activity.ID.Hex() {
		t.Errorf("activities.updated = %+v", acts.Updated)
	}
}

func TestServeStream_BadEntities(t *testing.T) {
	e := newEnv()
	rec := httptest.NewRecorder()
	e.router(t, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/api/sync/stream?entities=widgets", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeStream_PushesChange(t *testing.T) {
	e := newEnv()
	srv := httptest.NewServer(e.router(t, nil))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/sync/stream?entities=activities", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	// The opening comment means the stream is tracking.
	if !lines.Scan() || !strings.HasPrefix(lines.Text(), ": stream ") {
		t.Fatalf("first line = %q", lines.Text())
	}

	e.move(t)
	a, _ := e.store.Activity(e.activity.ID)

	for lines.Scan() {
		line := lines.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var c delta.Change
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &c); err != nil {
			t.Fatalf("decode change: %v", err)
		}
		if c.Entity != delta.KindActivities || c.Action != delta.ActionUpdated {
			t.Errorf("change = %+v", c)
		}
		if len(c.AffectedIDs) != 1 || c.AffectedIDs[0] != e.activity.ID.Hex() {
			t.Errorf("affectedIds = %v", c.AffectedIDs)
		}
		if !c.Timestamp.Equal(a.UpdatedAt) {
			t.Errorf("timestamp = %v, want %v", c.Timestamp, a.UpdatedAt)
		}
		return
	}
	t.Fatalf("stream ended without a change: %v", lines.Err())
}

func TestServeStream_RateLimited(t *testing.T) {
	e := newEnv()
	limiter := ratelimit.New(ratelimit.NewMemoryKV[*rate.Limiter](time.Now), 1, 1)
	h := e.router(t, limiter.Middleware(zap.NewNop(), nil))

	// The first stream consumes the only token; cancel it right away.
	ctx, cancel := context.WithCancel(context.Background())
	first := httptest.NewRequest("GET", "/api/sync/stream", nil).WithContext(ctx)
	first.RemoteAddr = "10.0.0.1:1234"
	cancel()
	h.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest("GET", "/api/sync/stream", nil)
	second.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
