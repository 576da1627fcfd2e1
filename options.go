package renraku

import (
	"io/fs"
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	databaseURL     string
	notifyURL       string
	sessionID       string
	countryCode     string
	logger          *slog.Logger
	version         string
	directory       Directory
	forwardNotify   bool
	extraMigrations []fs.FS
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when using a connection pooler (e.g. PgBouncer) for queries, since poolers
// break LISTEN.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithSessionID overrides the tenant identity from config (RENRAKU_SESSION_ID env var).
func WithSessionID(sessionID string) Option {
	return func(o *resolvedOptions) { o.sessionID = sessionID }
}

// WithCountryCode overrides the dial code used when deriving a JID from a
// local phone number (RENRAKU_COUNTRY_CODE env var).
func WithCountryCode(code string) Option {
	return func(o *resolvedOptions) { o.countryCode = code }
}

// WithLogger sets the structured logger. Defaults to a JSON slog handler
// on stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDirectory sets the remote directory used for best-effort contact
// enrichment. Without it, every lookup reports absent.
func WithDirectory(d Directory) Option {
	return func(o *resolvedOptions) { o.directory = d }
}

// WithNotifyForward also publishes every notification on the Postgres
// NOTIFY channel for out-of-process consumers.
func WithNotifyForward() Option {
	return func(o *resolvedOptions) { o.forwardNotify = true }
}

// WithExtraMigrations appends migration filesystems run after the built-in
// schema, for consumers extending the database.
func WithExtraMigrations(migrations ...fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, migrations...) }
}
