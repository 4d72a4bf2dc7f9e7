package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/customers"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL, or returns nil when it is
// unset or unreachable.
func BuildPostgresPool(ctx context.Context, dsn string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(dsn) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Warn("postgres config invalid", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres not available", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// BuildCustomerRepository uses Postgres when a pool is available and an
// in-memory repository otherwise.
func BuildCustomerRepository(pool *pgxpool.Pool, logger *logging.Logger, seed ...customers.Customer) customers.Repository {
	if logger == nil {
		logger = logging.Default()
	}
	if pool != nil {
		logger.Info("customers backed by postgres")
		return customers.NewPostgresRepository(pool)
	}
	logger.Warn("no database configured; customers kept in memory", "seeded", len(seed))
	return customers.NewInMemoryRepository(seed...)
}
