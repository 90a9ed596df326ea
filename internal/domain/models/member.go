// internal/domain/models/member.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Member is an organization member who can be placed on activity rosters.
// Members are referenced by squad memberships, never owned by them.
type Member struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	Power       int64              `bson:"power" json:"power"`
	Classes     []string           `bson:"classes" json:"classes"` // ordered, most relevant first
	Status      string             `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Member statuses.
const (
	MemberActive   = "active"
	MemberDisabled = "disabled"
)
