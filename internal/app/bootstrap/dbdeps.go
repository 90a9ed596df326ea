// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/rosterhub/internal/app/store/memory"
	"github.com/dalemusser/rosterhub/internal/app/system/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
)

// DBDeps holds database/back-end dependencies for the app. Exactly one of
// the Mongo pair or Memory is set, matching AppConfig.StoreBackend.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Memory        *memory.Store

	// StreamBuckets holds per-client token buckets for push stream opens.
	StreamBuckets *ratelimit.MemoryKV[*rate.Limiter]

	bg *background
}
