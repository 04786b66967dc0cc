package store

import (
	"context"
	"fmt"
)

// Open returns the store for backend. The memory backend keeps nothing
// across restarts and is meant for local runs.
func Open(ctx context.Context, backend, databaseURL string) (Store, error) {
	switch backend {
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
