package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/rosterhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsNotSupported(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("connection reset by peer"), false},
		{"standalone server code", mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}, true},
		{"illegal operation code", mongo.CommandError{Code: 51}, true},
		{"operation not supported in transaction code", mongo.CommandError{Code: 263}, true},
		{"duplicate key code", mongo.CommandError{Code: 11000, Message: "E11000 duplicate key"}, false},
		{"wrapped command error", wrap(mongo.CommandError{Code: 20}), true},
		{"replica set message", errors.New("Transactions require a Replica Set"), true},
		{"session message", errors.New("cannot continue transaction in this session"), true},
		{"sessions unsupported", errors.New("Sessions are NOT SUPPORTED by this deployment"), true},
		{"transaction alone", errors.New("transaction aborted"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotSupported(tt.err); got != tt.want {
				t.Errorf("IsNotSupported(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func wrap(err error) error { return errors.Join(errors.New("bump activity"), err) }

func TestRunWithoutTxn_RunsOnceAndWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cause := mongo.CommandError{Code: 20}
	calls := 0

	err := runWithoutTxn(context.Background(), zap.New(core), cause, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("runWithoutTxn: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn ran %d times, want 1", calls)
	}
	if logs.Len() != 1 {
		t.Fatalf("got %d warnings, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["error"]; got == nil {
		t.Error("warning does not carry the cause")
	}
}

func TestRunWithoutTxn_ReturnsFnError(t *testing.T) {
	boom := errors.New("commit failed")
	err := runWithoutTxn(context.Background(), nil, errors.New("no txn"), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRun_FallsBackWhenTransactionsUnsupported(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	core, logs := observer.New(zapcore.WarnLevel)

	calls := 0
	err := Run(ctx, db, zap.New(core), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return mongo.CommandError{Code: 20, Message: "Transaction numbers are only allowed on a replica set member or mongos"}
		}
		_, err := db.Collection("activities").InsertOne(ctx, bson.M{"name": "War"})
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("fn ran %d times, want 2", calls)
	}
	if logs.Len() == 0 {
		t.Error("fallback was not logged")
	}
	n, err := db.Collection("activities").CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("activities = %d, want 1", n)
	}
}

func TestRun_ReturnsFnError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	boom := errors.New("stale")
	err := Run(ctx, db, zap.NewNop(), func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
