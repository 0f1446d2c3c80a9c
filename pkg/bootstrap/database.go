package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadflow/internal/config"
)

// InitRedis connects and registers the client for shutdown.
func (b *Base) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := b.Config.Database.Redis
	if !cfg.Enabled() {
		return nil, fmt.Errorf("database.redis.host is not configured")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	b.OnShutdown("redis", func(context.Context) error { return rdb.Close() })
	b.Logger.Infow("Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}

// InitPostgreSQL returns nil when PostgreSQL is not configured.
func (b *Base) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	cfg := b.Config.Database.Postgres
	if !cfg.Enabled() {
		return nil, nil
	}

	db, err := sql.Open("postgres", PostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b.OnShutdown("postgres", func(context.Context) error { return db.Close() })
	b.Logger.Infow("PostgreSQL connected successfully", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}

func PostgresDSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
}

// InitMongoDB returns nil when MongoDB is not configured.
func (b *Base) InitMongoDB(ctx context.Context) (*mongo.Database, error) {
	cfg := b.Config.Database.MongoDB
	if !cfg.Enabled() {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	b.OnShutdown("mongodb", client.Disconnect)
	b.Logger.Infow("MongoDB connected successfully", "database", cfg.Database)
	return client.Database(cfg.Database), nil
}
