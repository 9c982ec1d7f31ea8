// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig handles framework-level settings (ports, TLS, logging,
// CORS). AppConfig is everything specific to BlockClub: the MongoDB
// connection, session cookies, the staff allow-list, impersonation limits,
// Google OAuth, and audit-log routing. The struct is passed to most lifecycle
// hooks, so any configuration needed during startup, request handling, or
// shutdown should live here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connections in the driver pool
	MongoMinPoolSize uint64 // Min connections kept warm in the pool

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: blockclub-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // How long a signed-in session lives

	// Staff configuration
	StaffAdmins         string        // Comma-separated staff-admin emails (exact, case-sensitive match)
	ImpersonationMaxAge time.Duration // How long a delegation cookie stays valid

	// Google OAuth configuration
	GoogleClientID     string
	GoogleClientSecret string

	// Base URL for OAuth callbacks
	BaseURL string // e.g., "https://blockclub.example" or "http://localhost:3000"

	// Audit logging settings
	AuditLogAuth  string // Auth event routing: "all", "db", "log", or "off"
	AuditLogAdmin string // Admin event routing: "all", "db", "log", or "off"

	// Mongo operation deadlines (see internal/app/system/timeouts)
	TimeoutPing   time.Duration
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
