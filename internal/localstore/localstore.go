// Package localstore is durable key-value storage local to one client, used to
// remember the player session and auth session between CLI invocations.
package localstore

import "context"

// Store is a string key-value store. Get reports ok=false for missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}
