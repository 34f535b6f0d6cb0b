package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Expiration scheduler: how often the batch entry points run, and the
// lookahead window for pre-emptive bot fill.
const (
	ExpirationJobInterval    = time.Minute
	NearExpirationWindowFrom = 8 * time.Minute
	NearExpirationWindowTo   = 10 * time.Minute
	ExpirationBatchTimeout   = 2 * time.Minute
)

// Outbound peer service calls
const (
	PeerRequestTimeout     = 10 * time.Second
	PeerMaxRetries         = 3
	EscrowRetryInitialWait = time.Second
	OrderRetryInitialWait  = 2 * time.Second
	RefundRetryInitialWait = 2 * time.Second
)

// Session validation
const (
	MinTargetMoq           = 2
	DefaultGrosirUnitSize  = 12
	DefaultSessionDuration = 24 * time.Hour
)
