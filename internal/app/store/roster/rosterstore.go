// internal/app/store/roster/rosterstore.go
package rosterstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/app/system/txn"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	_ assign.Store = (*Store)(nil)
	_ delta.Source = (*Store)(nil)
)

// Store is the MongoDB roster store. One Commit is one multi-document
// transaction when the deployment supports it.
type Store struct {
	db            *mongo.Database
	log           *zap.Logger
	members       *mongo.Collection
	activities    *mongo.Collection
	announcements *mongo.Collection
	squads        *mongo.Collection
	memberships   *mongo.Collection
	tombstones    *mongo.Collection
	audit         *audit.Store
}

func New(db *mongo.Database, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:            db,
		log:           log,
		members:       db.Collection("members"),
		activities:    db.Collection("activities"),
		announcements: db.Collection("announcements"),
		squads:        db.Collection("squads"),
		memberships:   db.Collection("squad_memberships"),
		tombstones:    db.Collection("tombstones"),
		audit:         audit.New(db),
	}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// LoadRoster reads the activity, its squads in display order, and every
// membership ordered by member id.
func (s *Store) LoadRoster(ctx context.Context, activityID primitive.ObjectID) (assign.Snapshot, error) {
	var snap assign.Snapshot
	if err := s.activities.FindOne(ctx, bson.M{"_id": activityID}).Decode(&snap.Activity); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return assign.Snapshot{}, assign.ErrActivityNotFound
		}
		return assign.Snapshot{}, err
	}

	cur, err := s.squads.Find(ctx, bson.M{"activity_id": activityID},
		options.Find().SetSort(bson.D{{Key: "display_order", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return assign.Snapshot{}, err
	}
	if err := cur.All(ctx, &snap.Squads); err != nil {
		return assign.Snapshot{}, err
	}

	cur, err = s.memberships.Find(ctx, bson.M{"activity_id": activityID},
		options.Find().SetSort(bson.D{{Key: "member_id", Value: 1}}))
	if err != nil {
		return assign.Snapshot{}, err
	}
	if err := cur.All(ctx, &snap.Memberships); err != nil {
		return assign.Snapshot{}, err
	}
	return snap, nil
}

// Members loads the named members. Unknown ids are absent from the result.
func (s *Store) Members(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Member, error) {
	out := make(map[primitive.ObjectID]models.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.members.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var m models.Member
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, cur.Err()
}

// Commit applies one roster batch at c.At. The activity compare-and-set
// runs first so a lost race aborts before any membership write.
func (s *Store) Commit(ctx context.Context, c assign.Commit) (time.Time, error) {
	err := txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		res, err := s.activities.UpdateOne(ctx,
			bson.M{"_id": c.ActivityID, "updated_at": c.ReadAt},
			bson.M{"$set": bson.M{"updated_at": c.At}})
		if err != nil {
			return fmt.Errorf("bump activity: %w", err)
		}
		if res.MatchedCount == 0 {
			n, err := s.activities.CountDocuments(ctx, bson.M{"_id": c.ActivityID})
			if err != nil {
				return err
			}
			if n == 0 {
				return assign.ErrActivityNotFound
			}
			return assign.ErrStale
		}

		if len(c.Insert) > 0 {
			docs := make([]any, len(c.Insert))
			for i, m := range c.Insert {
				docs[i] = m
			}
			if _, err := s.memberships.InsertMany(ctx, docs); err != nil {
				if wafflemongo.IsDup(err) {
					return assign.ErrStale
				}
				return fmt.Errorf("insert memberships: %w", err)
			}
		}

		for _, m := range c.Update {
			res, err := s.memberships.ReplaceOne(ctx, bson.M{"_id": m.ID, "activity_id": c.ActivityID}, m)
			if err != nil {
				return fmt.Errorf("update membership %s: %w", m.ID.Hex(), err)
			}
			if res.MatchedCount == 0 {
				return assign.ErrStale
			}
		}

		if len(c.Delete) > 0 {
			ids := make([]primitive.ObjectID, len(c.Delete))
			tombs := make([]any, len(c.Delete))
			for i, m := range c.Delete {
				ids[i] = m.ID
				activityID := c.ActivityID
				tombs[i] = models.Tombstone{
					ID:         primitive.NewObjectID(),
					Kind:       models.TombstoneMembership,
					EntityID:   m.ID,
					ActivityID: &activityID,
					DeletedAt:  c.At,
				}
			}
			res, err := s.memberships.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "activity_id": c.ActivityID})
			if err != nil {
				return fmt.Errorf("delete memberships: %w", err)
			}
			if res.DeletedCount != int64(len(ids)) {
				return assign.ErrStale
			}
			if _, err := s.tombstones.InsertMany(ctx, tombs); err != nil {
				return fmt.Errorf("write tombstones: %w", err)
			}
		}

		if len(c.Squads) > 0 {
			if _, err := s.squads.UpdateMany(ctx,
				bson.M{"_id": bson.M{"$in": c.Squads}, "activity_id": c.ActivityID},
				bson.M{"$set": bson.M{"updated_at": c.At}}); err != nil {
				return fmt.Errorf("bump squads: %w", err)
			}
		}

		if err := s.audit.Log(ctx, c.Audit); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return c.At, nil
}
