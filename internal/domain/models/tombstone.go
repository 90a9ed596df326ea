// internal/domain/models/tombstone.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tombstone records that an entity was deleted so sync clients can tell
// "removed" apart from "unchanged since my cursor".
type Tombstone struct {
	ID         primitive.ObjectID  `bson:"_id" json:"-"`
	Kind       string              `bson:"kind" json:"kind"`
	EntityID   primitive.ObjectID  `bson:"entity_id" json:"id"`
	ActivityID *primitive.ObjectID `bson:"activity_id,omitempty" json:"activity_id,omitempty"`
	DeletedAt  time.Time           `bson:"deleted_at" json:"deleted_at"`
}

// Tombstone kinds match the delta sync entity names. The roster write path
// only produces membership tombstones; the others are written by the CRUD
// that owns those collections when it hard-deletes a row.
const (
	TombstoneMember       = "members"
	TombstoneActivity     = "activities"
	TombstoneAnnouncement = "announcements"
	TombstoneSquad        = "squads"
	TombstoneMembership   = "memberships"
)

// TombstoneKinds lists every valid Tombstone.Kind.
var TombstoneKinds = []string{
	TombstoneMember, TombstoneActivity, TombstoneAnnouncement, TombstoneSquad, TombstoneMembership,
}
