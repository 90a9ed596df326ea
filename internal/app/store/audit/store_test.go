package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seed(t *testing.T, s *audit.Store, activityID, actorID primitive.ObjectID, action string, ts time.Time) audit.Event {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ev := audit.Event{
		ID:         primitive.NewObjectID(),
		Timestamp:  ts,
		ActorID:    actorID,
		ActorName:  "Mod",
		Action:     action,
		ActivityID: activityID,
		Count:      1,
		Summary:    "moved 1 member",
	}
	if err := s.Log(ctx, ev); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	return ev
}

func TestStore_Log_AutoGeneratesIDAndTimestamp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	activityID := primitive.NewObjectID()
	if err := store.Log(ctx, audit.Event{Action: audit.ActionEnlist, ActivityID: activityID, Count: 2}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	page, err := store.Query(ctx, audit.QueryFilter{ActivityID: &activityID})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(page.Events))
	}
	ev := page.Events[0]
	if ev.ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if ev.Count != 2 {
		t.Errorf("Count = %d, want 2", ev.Count)
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	a1, a2 := primitive.NewObjectID(), primitive.NewObjectID()
	mod, other := primitive.NewObjectID(), primitive.NewObjectID()
	base := time.Now().UTC().Truncate(time.Millisecond)

	seed(t, store, a1, mod, audit.ActionPoolToSquad, base.Add(-3*time.Minute))
	seed(t, store, a1, other, audit.ActionKickFromPool, base.Add(-2*time.Minute))
	seed(t, store, a2, mod, audit.ActionPoolToSquad, base.Add(-1*time.Minute))

	tests := []struct {
		name string
		f    audit.QueryFilter
		want int
	}{
		{"activity", audit.QueryFilter{ActivityID: &a1}, 2},
		{"actor", audit.QueryFilter{ActorID: &mod}, 2},
		{"action", audit.QueryFilter{Action: audit.ActionKickFromPool}, 1},
		{"activity and action", audit.QueryFilter{ActivityID: &a2, Action: audit.ActionPoolToSquad}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.Query(ctx, tt.f)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(page.Events) != tt.want {
				t.Errorf("got %d events, want %d", len(page.Events), tt.want)
			}
		})
	}

	start := base.Add(-150 * time.Second)
	page, err := store.Query(ctx, audit.QueryFilter{StartTime: &start})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page.Events) != 2 {
		t.Errorf("time range: got %d events, want 2", len(page.Events))
	}
}

func TestStore_Query_PagesNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	activityID, actor := primitive.NewObjectID(), primitive.NewObjectID()
	base := time.Now().UTC().Truncate(time.Millisecond)
	var want []primitive.ObjectID
	for i := 0; i < 5; i++ {
		ev := seed(t, store, activityID, actor, audit.ActionEnlist, base.Add(time.Duration(i)*time.Second))
		want = append([]primitive.ObjectID{ev.ID}, want...)
	}

	var got []primitive.ObjectID
	f := audit.QueryFilter{ActivityID: &activityID, Limit: 2}
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		page, err := store.Query(ctx, f)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		for _, ev := range page.Events {
			got = append(got, ev.ID)
		}
		if page.NextCursor == "" {
			break
		}
		f.After = page.NextCursor
	}

	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i].Hex(), want[i].Hex())
		}
	}
}

func TestStore_Query_BadCursor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Query(ctx, audit.QueryFilter{After: "not-a-cursor"}); err == nil {
		t.Error("expected error for malformed cursor")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123_000_000, time.UTC)
	id := primitive.NewObjectID()

	gotTS, gotID, err := audit.DecodeCursor(audit.EncodeCursor(ts, id))
	if err != nil {
		t.Fatalf("DecodeCursor failed: %v", err)
	}
	if !gotTS.Equal(ts) || gotID != id {
		t.Errorf("round trip = (%v, %s), want (%v, %s)", gotTS, gotID.Hex(), ts, id.Hex())
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int64]int64{0: 50, -1: 50, 10: 10, 200: 200, 500: 200} {
		if got := audit.ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPageOf(t *testing.T) {
	base := time.Now().UTC()
	events := []audit.Event{
		{ID: primitive.NewObjectID(), Timestamp: base},
		{ID: primitive.NewObjectID(), Timestamp: base.Add(-time.Second)},
		{ID: primitive.NewObjectID(), Timestamp: base.Add(-2 * time.Second)},
	}

	p := audit.PageOf(events, 2)
	if len(p.Events) != 2 || p.NextCursor == "" {
		t.Fatalf("PageOf(3, 2) = %d events, cursor %q", len(p.Events), p.NextCursor)
	}
	if p := audit.PageOf(nil, 2); p.Events == nil || p.NextCursor != "" {
		t.Errorf("empty page = %#v", p)
	}
}
