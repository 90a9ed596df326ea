// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (ROSTERHUB_*), configuration
// files, or command-line flags, loaded in LoadConfig. Framework-level
// settings (ports, TLS, logging level) live in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// StoreBackend selects "mongo" (default) or "memory" (local development
	// and demos; nothing survives a restart).
	StoreBackend string

	// Session management configuration. Sessions are issued elsewhere; this
	// app only reads them.
	SessionKey    string // Secret key for verifying session cookies
	SessionName   string // Cookie name for sessions (default: rosterhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// AuditLogRoster is "all" (database and zap) or "db" (database only).
	AuditLogRoster string

	// Delta sync push stream
	SyncPushInterval      time.Duration // scan cadence
	SyncHeartbeatInterval time.Duration // keep-alive comment cadence
	SyncMaxStream         time.Duration // connection lifetime before the client reconnects
	StreamRatePerMinute   int           // stream opens per client IP per minute

	// Deletion feed retention
	TombstoneRetention     time.Duration // how long deletions stay visible to pollers
	TombstonePruneInterval time.Duration

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	// Empty disables CORS headers.
	CORSAllowedOrigins []string
}
