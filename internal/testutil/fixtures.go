package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/rosterhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Fixtures provides helper methods for creating roster test data in MongoDB.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// Stamp is the millisecond-truncated time fixtures use, matching BSON precision.
func Stamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc any) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("insert into %s: %v", coll, err)
	}
}

// CreateMember creates an active organization member.
func (f *Fixtures) CreateMember(ctx context.Context, name string, power int64, classes ...string) models.Member {
	f.t.Helper()
	now := Stamp()
	m := models.Member{
		ID:          primitive.NewObjectID(),
		DisplayName: name,
		Power:       power,
		Classes:     classes,
		Status:      models.MemberActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.insert(ctx, "members", m)
	return m
}

// CreateActivity creates an open activity scheduled a day out.
func (f *Fixtures) CreateActivity(ctx context.Context, name string) models.Activity {
	f.t.Helper()
	now := Stamp()
	a := models.Activity{
		ID:          primitive.NewObjectID(),
		Name:        name,
		ScheduledAt: now.Add(24 * time.Hour),
		Status:      models.ActivityOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	f.insert(ctx, "activities", a)
	return a
}

// CreateSquad creates a squad in the given activity.
func (f *Fixtures) CreateSquad(ctx context.Context, activityID primitive.ObjectID, name string, order int) models.Squad {
	f.t.Helper()
	now := Stamp()
	s := models.Squad{
		ID:           primitive.NewObjectID(),
		ActivityID:   activityID,
		Name:         name,
		DisplayOrder: order,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.insert(ctx, "squads", s)
	return s
}

// CreateMembership places memberID on the activity roster. A nil squadID
// puts the member in the reserve pool.
func (f *Fixtures) CreateMembership(ctx context.Context, activityID, memberID primitive.ObjectID, squadID *primitive.ObjectID, role string, position int) models.SquadMembership {
	f.t.Helper()
	now := Stamp()
	m := models.SquadMembership{
		ID:         primitive.NewObjectID(),
		ActivityID: activityID,
		MemberID:   memberID,
		SquadID:    squadID,
		Role:       role,
		Position:   position,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.insert(ctx, "squad_memberships", m)
	return m
}

// CreateAnnouncement creates an active announcement.
func (f *Fixtures) CreateAnnouncement(ctx context.Context, title string) models.Announcement {
	f.t.Helper()
	now := Stamp()
	a := models.Announcement{
		ID:        primitive.NewObjectID(),
		Title:     title,
		Content:   title,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "announcements", a)
	return a
}
