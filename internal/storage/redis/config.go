package redis

import "time"

// Config holds Redis connection and behavior settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	// Pool settings
	PoolSize     int
	MinIdleConns int

	// MaxTxRetries bounds optimistic transaction retries on WATCH conflicts
	MaxTxRetries int

	// ChangeBuffer is the per-subscriber change feed capacity
	ChangeBuffer int

	// ConnectTimeout bounds the initial ping and pubsub handshake
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:            "redis://localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		MaxTxRetries:   10,
		ChangeBuffer:   256,
		ConnectTimeout: 5 * time.Second,
	}
}
