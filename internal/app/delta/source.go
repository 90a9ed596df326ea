package delta

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind is a tracked entity kind.
type Kind string

const (
	KindMembers       Kind = "members"
	KindActivities    Kind = "activities"
	KindAnnouncements Kind = "announcements"
	KindSquads        Kind = "squads"
	KindMemberships   Kind = "memberships"
)

// Kinds lists every tracked kind in response order.
var Kinds = []Kind{KindMembers, KindActivities, KindAnnouncements, KindSquads, KindMemberships}

// ParseKinds parses a comma-separated subset of tracked kinds. Empty input
// selects every kind. Duplicates collapse; order follows Kinds.
func ParseKinds(csv string) ([]Kind, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return append([]Kind(nil), Kinds...), nil
	}
	want := map[Kind]bool{}
	for _, part := range strings.Split(csv, ",") {
		k := Kind(strings.ToLower(strings.TrimSpace(part)))
		if k == "" {
			continue
		}
		if !k.Valid() {
			return nil, apperr.Validation("unknown entity kind %q", string(k))
		}
		want[k] = true
	}
	if len(want) == 0 {
		return nil, apperr.Validation("no entity kinds given")
	}
	out := make([]Kind, 0, len(want))
	for _, k := range Kinds {
		if want[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Valid reports whether k is a tracked kind.
func (k Kind) Valid() bool {
	for _, t := range Kinds {
		if t == k {
			return true
		}
	}
	return false
}

// Row is the full current representation of one changed entity.
type Row struct {
	ID        primitive.ObjectID
	UpdatedAt time.Time
	Doc       any
}

// Stamp is an entity id with its last-modified time.
type Stamp struct {
	ID        primitive.ObjectID
	UpdatedAt time.Time
}

// Source reads change information from the store. Every method returns rows
// strictly after since, ordered by (timestamp, _id).
type Source interface {
	Changed(ctx context.Context, kind Kind, since time.Time) ([]Row, error)
	ChangedIDs(ctx context.Context, kind Kind, since time.Time) ([]Stamp, error)
	Deleted(ctx context.Context, kind Kind, since time.Time) ([]models.Tombstone, error)
}
