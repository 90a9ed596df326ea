// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/rosterhub/internal/app/assign"
	"github.com/dalemusser/rosterhub/internal/app/delta"
	auditfeature "github.com/dalemusser/rosterhub/internal/app/features/auditlog"
	deltasyncfeature "github.com/dalemusser/rosterhub/internal/app/features/deltasync"
	healthfeature "github.com/dalemusser/rosterhub/internal/app/features/health"
	rosterfeature "github.com/dalemusser/rosterhub/internal/app/features/roster"
	"github.com/dalemusser/rosterhub/internal/app/system/auditlog"
	"github.com/dalemusser/rosterhub/internal/app/system/auth"
	"github.com/dalemusser/rosterhub/internal/app/system/ratelimit"
	"github.com/dalemusser/rosterhub/internal/app/system/telemetry"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. The router mounts:
//
//	/health          store connectivity
//	/metrics         Prometheus exposition
//	/api/activities  roster reads and writes
//	/api/sync        delta poll and push stream
//	/api/audit       roster audit trail
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	prod := coreCfg != nil && coreCfg.Env == "prod"

	sessionKey := appCfg.SessionKey
	if sessionKey == "" && !prod {
		logger.Warn("session_key not set; using a random key, sessions will not survive a restart")
		sessionKey = auth.RandomKey()
	}
	sessionMgr, err := auth.NewSessionManager(sessionKey, appCfg.SessionName, appCfg.SessionDomain, prod, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	st, err := buildStores(appCfg, deps, logger)
	if err != nil {
		return nil, err
	}

	auditLogger := auditlog.New(logger, auditlog.Config{Roster: appCfg.AuditLogRoster})
	assignSvc := assign.New(st.roster, auditLogger, logger)
	syncSvc := delta.NewService(st.sync, logger)
	streamOpts := delta.Options{
		Interval:       appCfg.SyncPushInterval,
		HeartbeatEvery: appCfg.SyncHeartbeatInterval,
		MaxDuration:    appCfg.SyncMaxStream,
	}

	var streamGuard func(http.Handler) http.Handler
	if deps.StreamBuckets != nil {
		limiter := ratelimit.New(deps.StreamBuckets, appCfg.StreamRatePerMinute, appCfg.StreamRatePerMinute/6+1)
		streamGuard = limiter.Middleware(logger, telemetry.RateLimited)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h := corsHandler(appCfg.CORSAllowedOrigins); h != nil {
		r.Use(h)
	}

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(st.ping, appCfg.StoreBackend, logger)))
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Mount("/activities", rosterfeature.Routes(rosterfeature.NewHandler(assignSvc, logger), sessionMgr))
		api.Mount("/sync", deltasyncfeature.Routes(deltasyncfeature.NewHandler(syncSvc, streamOpts, logger), sessionMgr, streamGuard))
		api.Mount("/audit", auditfeature.Routes(auditfeature.NewHandler(st.audit, logger), sessionMgr))
	})

	return r, nil
}

// corsHandler allows browser clients on other origins to call the API with
// their session cookie. A "*" entry allows any origin without credentials.
func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return nil
	}
	credentials := true
	for _, o := range origins {
		if o == "*" {
			credentials = false
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "If-Match", "If-None-Match", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}
