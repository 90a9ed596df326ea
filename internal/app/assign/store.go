package assign

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrActivityNotFound is returned by Store.LoadRoster for unknown activities.
	ErrActivityNotFound = errors.New("activity not found")

	// ErrStale is returned by Store.Commit when the activity's updated_at no
	// longer equals Commit.ReadAt, or a concurrent writer already placed one
	// of the inserted members. Nothing is written.
	ErrStale = errors.New("activity changed since it was read")
)

// Snapshot is the authoritative roster of one activity as read from the store.
type Snapshot struct {
	Activity    models.Activity
	Squads      []models.Squad
	Memberships []models.SquadMembership
}

// Commit is one grouped roster write. Stores apply it all-or-nothing.
type Commit struct {
	ActivityID primitive.ObjectID
	ReadAt     time.Time // activity updated_at observed when planning
	At         time.Time // new activity updated_at; also stamps every row below

	Insert []models.SquadMembership
	Update []models.SquadMembership
	Delete []models.SquadMembership // a tombstone is written for each

	Squads []primitive.ObjectID // squads whose membership list changed
	Audit  audit.Event
}

// Store is the persistence the Assignment Service needs.
type Store interface {
	LoadRoster(ctx context.Context, activityID primitive.ObjectID) (Snapshot, error)
	Members(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Member, error)
	// Commit applies c and returns the timestamp it stamped, which is c.At
	// unless the store had to move it later to keep change timestamps in
	// commit order.
	Commit(ctx context.Context, c Commit) (time.Time, error)
}
