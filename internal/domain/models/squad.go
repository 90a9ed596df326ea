// internal/domain/models/squad.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Squad belongs to exactly one Activity. Its members live in the
// squad_memberships collection, ordered by Position.
type Squad struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	ActivityID   primitive.ObjectID `bson:"activity_id" json:"activity_id"`
	Name         string             `bson:"name" json:"name"`
	DisplayOrder int                `bson:"display_order" json:"display_order"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
