package ports

import "errors"

// Standard infrastructure-level errors.
// Adapters wrap underlying errors with these so the app service can
// match on errors.Is without knowing the concrete adapter.
var (
	ErrUnknown            = errors.New("unknown error occurred")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Price Oracle Errors
	ErrPriceUnavailable = errors.New("price unavailable for symbol")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// Persistence Gateway Errors
	ErrNotFound     = errors.New("resource not found")
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
