// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	"github.com/dalemusser/rosterhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
func EnsureAll(ctx context.Context, db *mongo.Database, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	var problems []string

	// helper: ensure collection exists (with truthful logging) and then validator (if provided)
	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, log); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema, log); err != nil {
			// DocumentDB or other deployments may not support collMod/validators.
			if isNoSuchCommand(err) || isNotImplemented(err) {
				log.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
		}
	}

	// Roster collections
	ensure("members", membersSchema())
	ensure("activities", activitiesSchema())
	ensure("squads", squadsSchema())
	ensure("squad_memberships", squadMembershipsSchema())

	// Sync and audit
	ensure("tombstones", tombstonesSchema())
	ensure(audit.CollectionName, auditSchema())

	// Announcements are written by another surface; the sync feed only reads them.
	ensure("announcements", nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
// Uses ListCollectionNames to avoid "created collection" log when it didn't.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, log *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		log.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		// NamespaceExists / already exists is fine (race or prior run).
		if isNamespaceExistsErr(err) {
			log.Debug("collection exists", zap.String("collection", name))
			return false, nil
		}
		log.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	log.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *zap.Logger) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	if err := db.RunCommand(ctx, cmd).Decode(&out); err != nil {
		return err
	}
	log.Info("validator ensured", zap.String("collection", name))
	return nil
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

var nonBlank = bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"}

func membersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"display_name", "status", "updated_at"},
			"properties": bson.M{
				"display_name": nonBlank,
				"power":        bson.M{"bsonType": bson.A{"long", "int"}, "minimum": 0},
				"classes":      bson.M{"bsonType": bson.A{"array", "null"}, "items": bson.M{"bsonType": "string"}},
				"status":       bson.M{"enum": bson.A{models.MemberActive, models.MemberDisabled}},
				"updated_at":   bson.M{"bsonType": "date"},
			},
		},
	}
}

func activitiesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "status", "updated_at"},
			"properties": bson.M{
				"name":       nonBlank,
				"status":     bson.M{"enum": bson.A{models.ActivityOpen, models.ActivityArchived}},
				"updated_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func squadsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"activity_id", "name", "updated_at"},
			"properties": bson.M{
				"activity_id":   bson.M{"bsonType": "objectId"},
				"name":          nonBlank,
				"display_order": bson.M{"bsonType": bson.A{"int", "long"}},
				"updated_at":    bson.M{"bsonType": "date"},
			},
		},
	}
}

// squad_id is null for reserve-pool memberships.
func squadMembershipsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"activity_id", "member_id", "squad_id", "position", "updated_at"},
			"properties": bson.M{
				"activity_id": bson.M{"bsonType": "objectId"},
				"member_id":   bson.M{"bsonType": "objectId"},
				"squad_id":    bson.M{"bsonType": bson.A{"objectId", "null"}},
				"role":        bson.M{"bsonType": "string", "maxLength": 32},
				"position":    bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"updated_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func tombstonesSchema() bson.M {
	kinds := make(bson.A, len(models.TombstoneKinds))
	for i, k := range models.TombstoneKinds {
		kinds[i] = k
	}
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"kind", "entity_id", "deleted_at"},
			"properties": bson.M{
				"kind":       bson.M{"enum": kinds},
				"entity_id":  bson.M{"bsonType": "objectId"},
				"deleted_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func auditSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"timestamp", "actor_id", "action", "activity_id", "count"},
			"properties": bson.M{
				"timestamp":   bson.M{"bsonType": "date"},
				"actor_id":    bson.M{"bsonType": "objectId"},
				"action":      bson.M{"bsonType": "string", "minLength": 1},
				"activity_id": bson.M{"bsonType": "objectId"},
				"count":       bson.M{"bsonType": bson.A{"int", "long"}, "minimum": 0},
				"summary":     bson.M{"bsonType": "string"},
			},
		},
	}
}
