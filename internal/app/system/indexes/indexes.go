// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called at startup from EnsureSchema. Each collection set is
idempotent. Errors are aggregated so every problem is visible and startup can
fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var problems []string
	for _, set := range collectionSets() {
		if err := ensureIndexSet(ctx, db.Collection(set.collection), set.models, log); err != nil {
			problems = append(problems, set.collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type indexSet struct {
	collection string
	models     []mongo.IndexModel
}

// updatedAtModel is the change-scan index every tracked collection carries.
// The _id suffix matches the (updated_at, _id) sort used by delta polls.
func updatedAtModel(prefix string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("idx_" + prefix + "_updated"),
	}
}

func collectionSets() []indexSet {
	return []indexSet{
		{"members", []mongo.IndexModel{
			updatedAtModel("member"),
		}},
		{"activities", []mongo.IndexModel{
			updatedAtModel("activity"),
			{
				Keys:    bson.D{{Key: "scheduled_at", Value: -1}},
				Options: options.Index().SetName("idx_activity_scheduled"),
			},
		}},
		{"announcements", []mongo.IndexModel{
			updatedAtModel("announcement"),
		}},
		{"squads", []mongo.IndexModel{
			updatedAtModel("squad"),
			{
				Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "display_order", Value: 1}},
				Options: options.Index().SetName("idx_squad_activity_order"),
			},
		}},
		{"squad_memberships", []mongo.IndexModel{
			// One roster slot per member per activity (pool or exactly one squad).
			{
				Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "member_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_sm_activity_member"),
			},
			{
				Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "squad_id", Value: 1}, {Key: "position", Value: 1}},
				Options: options.Index().SetName("idx_sm_activity_squad_pos"),
			},
			updatedAtModel("sm"),
		}},
		{"tombstones", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "deleted_at", Value: 1}, {Key: "_id", Value: 1}},
				Options: options.Index().SetName("idx_tomb_kind_deleted"),
			},
		}},
		{"roster_audit", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}},
				Options: options.Index().SetName("idx_audit_ts"),
			},
			{
				Keys:    bson.D{{Key: "activity_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("idx_audit_activity_ts"),
			},
			{
				Keys:    bson.D{{Key: "actor_id", Value: 1}, {Key: "timestamp", Value: -1}},
				Options: options.Index().SetName("idx_audit_actor_ts"),
			},
		}},
	}
}

/* -------------------------------------------------------------------------- */
/* Reconciler                                                                 */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolOf(p *bool) bool {
	return p != nil && *p
}

func listExisting(ctx context.Context, coll *mongo.Collection, log *zap.Logger) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		// Collection may not exist yet; everything gets created.
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			log.Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// ensureIndexSet reconciles desired indexes with what the collection has.
// An index with the same keys is reused when its uniqueness and name match,
// otherwise it is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel, log *zap.Logger) error {
	var errs []string
	existing := listExisting(ctx, coll, log)

	for _, m := range models {
		var name string
		var unique bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = boolOf(m.Options.Unique)
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[sig]; ok {
			if boolOf(ex.Unique) == unique && (name == "" || ex.Name == name) {
				log.Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", sig))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
			log.Info("dropped index for recreate",
				zap.String("collection", coll.Name()),
				zap.String("from", ex.Name),
				zap.String("to", name))
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && wafflemongo.IsDup(err) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present on %s)", coll.Name(), name, sig))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			log.Warn("index ensure failed",
				zap.String("collection", coll.Name()),
				zap.String("name", name),
				zap.String("keys", sig),
				zap.Error(err))
			continue
		}
		log.Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
			zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
