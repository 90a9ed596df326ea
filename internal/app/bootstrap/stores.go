// internal/app/bootstrap/stores.go
package bootstrap

import (
	"fmt"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	auditfeature "github.com/dalemusser/rosterhub/internal/app/features/auditlog"
	healthfeature "github.com/dalemusser/rosterhub/internal/app/features/health"
	"github.com/dalemusser/rosterhub/internal/app/store/audit"
	rosterstore "github.com/dalemusser/rosterhub/internal/app/store/roster"
	"github.com/dalemusser/rosterhub/internal/app/system/workers"
	"go.uber.org/zap"
)

// stores is the backend-specific persistence the services are built on.
type stores struct {
	roster assign.Store
	sync   delta.Source
	audit  auditfeature.QueryFunc
	ping   healthfeature.Pinger
	prune  workers.Pruner
}

func buildStores(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (stores, error) {
	switch {
	case deps.Memory != nil:
		m := deps.Memory
		return stores{roster: m, sync: m, audit: m.QueryAudit, ping: m, prune: m}, nil
	case deps.MongoDatabase != nil:
		rs := rosterstore.New(deps.MongoDatabase, logger)
		return stores{roster: rs, sync: rs, audit: audit.New(deps.MongoDatabase).Query, ping: rs, prune: rs}, nil
	default:
		return stores{}, fmt.Errorf("no store configured for backend %q", appCfg.StoreBackend)
	}
}
