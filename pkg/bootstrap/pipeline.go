package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"leadflow/internal/broker"
	"leadflow/internal/constants"
	"leadflow/internal/idempotency"
	"leadflow/internal/notification"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	"leadflow/pkg/migrations"
)

// InitObjectStore opens the lead object store and creates the lead bucket
// when storage.create_bucket is set.
func (b *Base) InitObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	cfg := b.Config.Storage
	if cfg.Backend == constants.BackendMemory {
		b.Logger.Warnw("Using in-memory object store, records are lost on restart")
		return storage.NewMemoryStore(), nil
	}

	store, err := storage.NewMinIOStore(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CreateBucket {
		if err := store.EnsureBucket(ctx, cfg.Bucket); err != nil {
			return nil, err
		}
	}
	b.Logger.Infow("Object store configured", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return store, nil
}

// InitQueue builds the delay queue. The Redis backend needs rdb.
func (b *Base) InitQueue(rdb *redis.Client) (scheduler.Queue, error) {
	cfg := b.Config.Scheduler
	opts := scheduler.OptionsFromConfig(cfg)

	switch cfg.Backend {
	case constants.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis scheduler backend requires database.redis")
		}
		return scheduler.NewRedisQueue(rdb, cfg.KeyPrefix, opts), nil
	case constants.BackendMemory:
		b.Logger.Warnw("Using in-memory delay queue, tasks are lost on restart")
		return scheduler.NewMemoryQueue(opts), nil
	default:
		return nil, fmt.Errorf("unknown scheduler backend: %s", cfg.Backend)
	}
}

// NewGuard returns a Redis guard when rdb is set and an in-process guard
// otherwise.
func (b *Base) NewGuard(rdb *redis.Client, prefix string) idempotency.Guard {
	if rdb == nil {
		b.Logger.Warnw("Redis not configured, idempotency markers are process local")
		return idempotency.NewMemoryGuard()
	}
	return idempotency.NewRedisGuard(rdb, prefix)
}

// InitNATS connects when the broker type is nats and returns nil otherwise.
func (b *Base) InitNATS() (*nats.Conn, error) {
	if b.Config.Broker.Type != constants.BrokerNATS {
		return nil, nil
	}
	conn, err := broker.ConnectNATS(b.Config.Broker.NATS, b.Logger)
	if err != nil {
		return nil, err
	}
	b.OnShutdown("nats", func(context.Context) error { return conn.Drain() })
	b.Logger.Infow("NATS connected successfully", "url", conn.ConnectedUrl())
	return conn, nil
}

// InitRecordStore selects the notification record store. It returns nil when
// none is configured. The PostgreSQL store runs the embedded migrations first
// unless database.run_migrations is off.
func (b *Base) InitRecordStore(db *sql.DB) (notification.RecordStore, error) {
	switch b.Config.Notification.Store {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres record store requires database.postgres")
		}
		if b.Config.Database.RunMigrations {
			if err := migrations.MigratePostgres(db); err != nil {
				return nil, err
			}
			b.Logger.Infow("Database migrations applied")
		}
		return notification.NewPostgresRecordStore(db), nil
	case "memory":
		return notification.NewMemoryRecordStore(), nil
	default:
		return nil, nil
	}
}
