// internal/domain/models/squadmembership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SquadMembership places a member on an activity roster.
//
// Exactly one document per (activity_id, member_id). A nil SquadID means the
// member sits in the activity's reserve pool; reserve-pool memberships carry
// no role and no meaningful position.
type SquadMembership struct {
	ID         primitive.ObjectID  `bson:"_id" json:"id"`
	ActivityID primitive.ObjectID  `bson:"activity_id" json:"activity_id"`
	MemberID   primitive.ObjectID  `bson:"member_id" json:"member_id"`
	SquadID    *primitive.ObjectID `bson:"squad_id" json:"squad_id"`
	Role       string              `bson:"role,omitempty" json:"role,omitempty"`
	Position   int                 `bson:"position" json:"position"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// InPool reports whether the membership is a reserve-pool membership.
func (m SquadMembership) InPool() bool {
	return m.SquadID == nil
}

// InSquad reports whether the membership belongs to the given squad.
func (m SquadMembership) InSquad(id primitive.ObjectID) bool {
	return m.SquadID != nil && *m.SquadID == id
}
