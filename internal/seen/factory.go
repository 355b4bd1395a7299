package seen

import (
	"fmt"
	"log/slog"
	"time"
)

// FromConfig builds a Store from the configured backend type.
func FromConfig(storeType, redisURL string, capacity int, ttl time.Duration) (Store, error) {
	switch storeType {
	case "redis":
		if redisURL == "" {
			return nil, fmt.Errorf("seen: redis backend requires a redis URL")
		}
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		slog.Info("seen store: redis backend", "url", redisURL, "ttl", ttl)
		return NewRedisStore(newGoRedisClient(redisURL), "seen:", ttl), nil
	case "memory":
		slog.Info("seen store: in-memory backend", "capacity", capacity)
		return NewMemoryStore(capacity), nil
	case "", "noop":
		slog.Info("seen store: disabled (duplicate suppression off)")
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("seen: unknown store type %q", storeType)
	}
}
