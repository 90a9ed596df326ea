// internal/app/system/auditlog/logger.go
package auditlog

import (
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/htmlsanitize"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const maxSummaryLen = 280

// Config holds audit logging configuration.
type Config struct {
	// Roster controls where roster audit records go.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only).
	// Records are always persisted because they commit together with the
	// roster write they describe.
	Roster string
}

// Entry is the caller's description of one logical batch.
type Entry struct {
	ActorID    primitive.ObjectID
	ActorName  string
	Action     string
	ActivityID primitive.ObjectID
	TargetID   *primitive.ObjectID
	Count      int
	Summary    string
	Details    map[string]string
}

// Logger prepares roster audit events and mirrors committed ones to zap.
type Logger struct {
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(zapLog *zap.Logger, config Config) *Logger {
	if config.Roster == "" {
		config.Roster = "all"
	}
	return &Logger{zapLog: zapLog, config: config}
}

// Event builds the persisted form of e stamped at ts. Free text is stripped
// of markup.
func (l *Logger) Event(e Entry, ts time.Time) audit.Event {
	return audit.Event{
		ID:         primitive.NewObjectID(),
		Timestamp:  ts,
		ActorID:    e.ActorID,
		ActorName:  htmlsanitize.Truncate(htmlsanitize.PlainText(e.ActorName), 80),
		Action:     e.Action,
		ActivityID: e.ActivityID,
		TargetID:   e.TargetID,
		Count:      e.Count,
		Summary:    htmlsanitize.Truncate(htmlsanitize.PlainText(e.Summary), maxSummaryLen),
		Details:    e.Details,
	}
}

// Committed is called once the event's write has committed.
// A nil Logger is a no-op.
func (l *Logger) Committed(event audit.Event) {
	if l == nil || l.zapLog == nil {
		return
	}
	if strings.ToLower(l.config.Roster) != "all" {
		return
	}
	l.logToZap(event)
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("action", event.Action),
		zap.String("activity_id", event.ActivityID.Hex()),
		zap.String("actor_id", event.ActorID.Hex()),
		zap.Int("count", event.Count),
		zap.String("summary", event.Summary),
	}
	if event.TargetID != nil {
		fields = append(fields, zap.String("target_id", event.TargetID.Hex()))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}
	l.zapLog.Info("audit event", fields...)
}
