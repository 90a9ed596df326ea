// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/delta"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for rosterhub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: ROSTERHUB_MONGO_URI, ROSTERHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "rosterhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "store_backend", Default: BackendMongo, Desc: "Store backend: 'mongo' or 'memory'"},

	{Name: "session_key", Default: "", Desc: "Session signing key (required in production)"},
	{Name: "session_name", Default: "rosterhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Audit logging settings
	{Name: "audit_log_roster", Default: "all", Desc: "Roster audit logging: 'all' (db+log) or 'db'"},

	// Delta sync push stream
	{Name: "sync_push_interval", Default: "2s", Desc: "Push stream scan interval"},
	{Name: "sync_heartbeat_interval", Default: "15s", Desc: "Push stream keep-alive interval"},
	{Name: "sync_max_stream", Default: "30s", Desc: "Push stream maximum connection duration"},
	{Name: "stream_rate_per_minute", Default: 30, Desc: "Push stream opens allowed per client IP per minute"},

	// Deletion feed
	{Name: "tombstone_retention", Default: "720h", Desc: "How long deletions stay visible to sync pollers"},
	{Name: "tombstone_prune_interval", Default: "1h", Desc: "How often expired tombstones are removed"},

	{Name: "cors_allowed_origins", Default: "", Desc: "Comma-separated browser origins allowed to call the API"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges flags > env > files > defaults
// (WAFFLE_* for core, ROSTERHUB_* for app).
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "ROSTERHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		StoreBackend:     strings.ToLower(strings.TrimSpace(appValues.String("store_backend"))),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),

		AuditLogRoster: appValues.String("audit_log_roster"),

		SyncPushInterval:      appValues.Duration("sync_push_interval", delta.DefaultInterval),
		SyncHeartbeatInterval: appValues.Duration("sync_heartbeat_interval", delta.DefaultHeartbeatEvery),
		SyncMaxStream:         appValues.Duration("sync_max_stream", delta.DefaultMaxDuration),
		StreamRatePerMinute:   appValues.Int("stream_rate_per_minute"),

		TombstoneRetention:     appValues.Duration("tombstone_retention", 30*24*time.Hour),
		TombstonePruneInterval: appValues.Duration("tombstone_prune_interval", time.Hour),

		CORSAllowedOrigins: splitList(appValues.String("cors_allowed_origins")),
	}
	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The MongoDB URI is validated early, before attempting to connect, and a
// production deployment must carry its own session key.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if strings.TrimSpace(appCfg.MongoDatabase) == "" {
			return fmt.Errorf("mongo_database is required")
		}
	case BackendMemory:
		if coreCfg != nil && coreCfg.Env == "prod" {
			return fmt.Errorf("store_backend=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.StoreBackend)
	}

	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in production")
	}

	switch appCfg.AuditLogRoster {
	case "all", "db":
	default:
		return fmt.Errorf("audit_log_roster must be 'all' or 'db', got %q", appCfg.AuditLogRoster)
	}

	if err := checkPositive(map[string]time.Duration{
		"sync_push_interval":       appCfg.SyncPushInterval,
		"sync_heartbeat_interval":  appCfg.SyncHeartbeatInterval,
		"sync_max_stream":          appCfg.SyncMaxStream,
		"tombstone_retention":      appCfg.TombstoneRetention,
		"tombstone_prune_interval": appCfg.TombstonePruneInterval,
	}); err != nil {
		return err
	}
	if appCfg.SyncMaxStream < appCfg.SyncPushInterval {
		return fmt.Errorf("sync_max_stream (%s) must not be shorter than sync_push_interval (%s)",
			appCfg.SyncMaxStream, appCfg.SyncPushInterval)
	}
	if appCfg.StreamRatePerMinute <= 0 {
		return fmt.Errorf("stream_rate_per_minute must be positive")
	}
	return nil
}

func checkPositive(durations map[string]time.Duration) error {
	for _, name := range []string{
		"sync_push_interval", "sync_heartbeat_interval", "sync_max_stream",
		"tombstone_retention", "tombstone_prune_interval",
	} {
		if d, ok := durations[name]; ok && d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// splitList parses a comma-separated config value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
