// internal/domain/models/activity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity is a scheduled occasion (e.g. a war) with one reserve pool and
// zero or more squads. UpdatedAt is the source of the activity's version token
// and advances on every roster mutation.
type Activity struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	ScheduledAt time.Time          `bson:"scheduled_at" json:"scheduled_at"`
	Status      string             `bson:"status" json:"status"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Activity statuses.
const (
	ActivityOpen     = "open"
	ActivityArchived = "archived"
)
