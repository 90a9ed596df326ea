package indexes_test

import (
	"testing"

	"github.com/dalemusser/rosterhub/internal/app/system/indexes"
	"github.com/dalemusser/rosterhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("first EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_MembershipUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	activity := primitive.NewObjectID()
	member := primitive.NewObjectID()
	coll := db.Collection("squad_memberships")

	if _, err := coll.InsertOne(ctx, bson.M{"_id": primitive.NewObjectID(), "activity_id": activity, "member_id": member, "squad_id": nil}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	squad := primitive.NewObjectID()
	_, err := coll.InsertOne(ctx, bson.M{"_id": primitive.NewObjectID(), "activity_id": activity, "member_id": member, "squad_id": squad})
	if err == nil {
		t.Fatal("expected duplicate key error for second membership of the same member")
	}
}

func TestEnsureAll_NamesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	cur, err := db.Collection("squad_memberships").Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := map[string]bool{}
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n, ok := idx["name"].(string); ok {
			names[n] = true
		}
	}
	for _, want := range []string{"uniq_sm_activity_member", "idx_sm_activity_squad_pos", "idx_sm_updated"} {
		if !names[want] {
			t.Errorf("missing index %q", want)
		}
	}
}
