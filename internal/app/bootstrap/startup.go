// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

const bucketSweepEvery = time.Minute

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It starts
// the background workers that Shutdown stops.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.bg == nil {
		return nil
	}

	if deps.StreamBuckets != nil {
		deps.bg.Go(func(ctx context.Context) {
			deps.StreamBuckets.Run(ctx, bucketSweepEvery)
		})
	}

	st, err := buildStores(appCfg, deps, logger)
	if err != nil {
		return err
	}
	prune := workers.NewTombstonePrune(st.prune, logger, appCfg.TombstonePruneInterval, appCfg.TombstoneRetention)
	prune.Start()
	deps.bg.OnStop(prune.Stop)

	logger.Info("rosterhub started",
		zap.String("store_backend", appCfg.StoreBackend),
		zap.Duration("sync_push_interval", appCfg.SyncPushInterval),
		zap.Duration("sync_max_stream", appCfg.SyncMaxStream))
	return nil
}
