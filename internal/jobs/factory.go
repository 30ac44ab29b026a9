package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-reader/internal/config"
)

// Driver identifiers supported by the job store.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// NewStore creates a job store based on the provided configuration.
func NewStore(ctx context.Context, cfg config.JobsConfig, log *slog.Logger) (Store, error) {
	ttl := time.Duration(cfg.TTLMS) * time.Millisecond
	log = log.With(slog.String("component", "jobs"), slog.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(ttl), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, ttl, log)
	case DriverRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unsupported job store driver: %s", cfg.Driver)
	}
}
