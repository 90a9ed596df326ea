package rosterstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var changeSort = bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}}

func (s *Store) collection(kind delta.Kind) (*mongo.Collection, error) {
	switch kind {
	case delta.KindMembers:
		return s.members, nil
	case delta.KindActivities:
		return s.activities, nil
	case delta.KindAnnouncements:
		return s.announcements, nil
	case delta.KindSquads:
		return s.squads, nil
	case delta.KindMemberships:
		return s.memberships, nil
	}
	return nil, fmt.Errorf("unknown entity kind %q", kind)
}

// Changed returns full rows of kind updated strictly after since.
func (s *Store) Changed(ctx context.Context, kind delta.Kind, since time.Time) ([]delta.Row, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	cur, err := coll.Find(ctx, bson.M{"updated_at": bson.M{"$gt": since}}, options.Find().SetSort(changeSort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []delta.Row
	for cur.Next(ctx) {
		row, err := decodeRow(kind, cur)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		rows = append(rows, row)
	}
	return rows, cur.Err()
}

func decodeRow(kind delta.Kind, cur *mongo.Cursor) (delta.Row, error) {
	switch kind {
	case delta.KindMembers:
		var m models.Member
		err := cur.Decode(&m)
		return delta.Row{ID: m.ID, UpdatedAt: m.UpdatedAt, Doc: m}, err
	case delta.KindActivities:
		var a models.Activity
		err := cur.Decode(&a)
		return delta.Row{ID: a.ID, UpdatedAt: a.UpdatedAt, Doc: a}, err
	case delta.KindAnnouncements:
		var a models.Announcement
		err := cur.Decode(&a)
		return delta.Row{ID: a.ID, UpdatedAt: a.UpdatedAt, Doc: a}, err
	case delta.KindSquads:
		var sq models.Squad
		err := cur.Decode(&sq)
		return delta.Row{ID: sq.ID, UpdatedAt: sq.UpdatedAt, Doc: sq}, err
	default:
		var m models.SquadMembership
		err := cur.Decode(&m)
		return delta.Row{ID: m.ID, UpdatedAt: m.UpdatedAt, Doc: m}, err
	}
}

// ChangedIDs is Changed projected to (_id, updated_at) for push scans.
func (s *Store) ChangedIDs(ctx context.Context, kind delta.Kind, since time.Time) ([]delta.Stamp, error) {
	coll, err := s.collection(kind)
	if err != nil {
		return nil, err
	}
	opts := options.Find().
		SetSort(changeSort).
		SetProjection(bson.M{"_id": 1, "updated_at": 1})
	cur, err := coll.Find(ctx, bson.M{"updated_at": bson.M{"$gt": since}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []delta.Stamp
	for cur.Next(ctx) {
		var doc struct {
			ID        primitive.ObjectID `bson:"_id"`
			UpdatedAt time.Time          `bson:"updated_at"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, delta.Stamp{ID: doc.ID, UpdatedAt: doc.UpdatedAt})
	}
	return out, cur.Err()
}

// Deleted returns tombstones of kind written strictly after since.
func (s *Store) Deleted(ctx context.Context, kind delta.Kind, since time.Time) ([]models.Tombstone, error) {
	cur, err := s.tombstones.Find(ctx,
		bson.M{"kind": string(kind), "deleted_at": bson.M{"$gt": since}},
		options.Find().SetSort(bson.D{{Key: "deleted_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []models.Tombstone
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PruneTombstones deletes tombstones written before cutoff. A poll whose
// cursor is older than the retention window can no longer see those
// deletions and should reload instead.
func (s *Store) PruneTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.tombstones.DeleteMany(ctx, bson.M{"deleted_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
