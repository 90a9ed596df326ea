package auditlog_test

import (
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/auditlog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	// Must not panic.
	logger.Committed(audit.Event{Action: "test"})
}

func TestLogger_Event_SanitizesAndStamps(t *testing.T) {
	logger := auditlog.New(zap.NewNop(), auditlog.Config{})
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actor := primitive.NewObjectID()
	activity := primitive.NewObjectID()

	ev := logger.Event(auditlog.Entry{
		ActorID:    actor,
		ActorName:  "<i>Ada</i>",
		Action:     audit.ActionPoolToSquad,
		ActivityID: activity,
		Count:      2,
		Summary:    "<b>Ada</b> moved 2 members",
	}, ts)

	if ev.ID.IsZero() {
		t.Error("expected generated ID")
	}
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("timestamp: got %v", ev.Timestamp)
	}
	if ev.ActorName != "Ada" {
		t.Errorf("actor name: got %q", ev.ActorName)
	}
	if ev.Summary != "Ada moved 2 members" {
		t.Errorf("summary: got %q", ev.Summary)
	}
	if ev.Count != 2 || ev.ActorID != actor || ev.ActivityID != activity {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestLogger_Committed_RespectsConfig(t *testing.T) {
	cases := []struct {
		setting string
		want    int
	}{
		{"all", 1},
		{"", 1},
		{"db", 0},
	}
	for _, tc := range cases {
		core, logs := observer.New(zapcore.InfoLevel)
		logger := auditlog.New(zap.New(core), auditlog.Config{Roster: tc.setting})

		logger.Committed(audit.Event{Action: audit.ActionKickFromPool, Details: map[string]string{"k": "v"}})

		if got := logs.Len(); got != tc.want {
			t.Errorf("setting %q: got %d log entries, want %d", tc.setting, got, tc.want)
		}
	}
}
