// internal/app/store/audit/store.go
package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrBadCursor is returned when a pagination cursor cannot be decoded.
var ErrBadCursor = errors.New("invalid cursor")

// CollectionName is the roster audit trail.
const CollectionName = "roster_audit"

// Roster action kinds.
const (
	ActionEnlist        = "enlist"
	ActionPoolToSquad   = "pool_to_squad"
	ActionSquadToSquad  = "squad_to_squad"
	ActionSquadToPool   = "squad_to_pool"
	ActionKickFromPool  = "kick_from_pool"
	ActionKickFromSquad = "kick_from_squad"
	ActionAssignRole    = "assign_role"
)

// Event is one append-only audit record. One event is written per logical
// batch, never per member.
type Event struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Timestamp  time.Time           `bson:"timestamp" json:"timestamp"`
	ActorID    primitive.ObjectID  `bson:"actor_id" json:"actorId"`
	ActorName  string              `bson:"actor_name,omitempty" json:"actorName,omitempty"`
	Action     string              `bson:"action" json:"action"`
	ActivityID primitive.ObjectID  `bson:"activity_id" json:"activityId"`
	TargetID   *primitive.ObjectID `bson:"target_id,omitempty" json:"targetId,omitempty"` // squad, when the batch has a single one
	Count      int                 `bson:"count" json:"count"`
	Summary    string              `bson:"summary" json:"summary"`
	Details    map[string]string   `bson:"details,omitempty" json:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events. Results are newest
// first; After is an opaque cursor returned as Page.NextCursor.
type QueryFilter struct {
	ActivityID *primitive.ObjectID
	ActorID    *primitive.ObjectID
	Action     string
	StartTime  *time.Time
	EndTime    *time.Time
	After      string
	Limit      int64
}

// Page is one window of audit events.
type Page struct {
	Events     []Event `json:"events"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(CollectionName)}
}

// Log records an audit event. Pass a transaction session context to make the
// record part of the surrounding write.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves one page of audit events matching the filter.
func (s *Store) Query(ctx context.Context, f QueryFilter) (Page, error) {
	query := bson.M{}
	if f.ActivityID != nil {
		query["activity_id"] = *f.ActivityID
	}
	if f.ActorID != nil {
		query["actor_id"] = *f.ActorID
	}
	if f.Action != "" {
		query["action"] = f.Action
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		query["timestamp"] = tq
	}
	if f.After != "" {
		ts, id, err := DecodeCursor(f.After)
		if err != nil {
			return Page{}, err
		}
		query["$or"] = []bson.M{
			{"timestamp": bson.M{"$lt": ts}},
			{"timestamp": ts, "_id": bson.M{"$lt": id}},
		}
	}

	limit := ClampLimit(f.Limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit + 1)

	cur, err := s.c.Find(ctx, query, opts)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return Page{}, err
	}
	return PageOf(events, limit), nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int64) int64 {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// PageOf trims a limit+1 result set and computes the next cursor.
func PageOf(events []Event, limit int64) Page {
	p := Page{Events: events}
	if int64(len(events)) > limit {
		p.Events = events[:limit]
		last := p.Events[len(p.Events)-1]
		p.NextCursor = EncodeCursor(last.Timestamp, last.ID)
	}
	if p.Events == nil {
		p.Events = []Event{}
	}
	return p
}

// EncodeCursor builds an opaque keyset cursor from a timestamp and id.
func EncodeCursor(ts time.Time, id primitive.ObjectID) string {
	return wafflemongo.EncodeCursor(strconv.FormatInt(ts.UnixMilli(), 10), id)
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(s string) (time.Time, primitive.ObjectID, error) {
	c, ok := wafflemongo.DecodeCursor(s)
	if !ok {
		return time.Time{}, primitive.NilObjectID, ErrBadCursor
	}
	ms, err := strconv.ParseInt(c.CI, 10, 64)
	if err != nil {
		return time.Time{}, primitive.NilObjectID, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return time.UnixMilli(ms).UTC(), c.ID, nil
}
