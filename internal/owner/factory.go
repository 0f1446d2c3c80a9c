package owner

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"

	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/internal/storage"
	"leadflow/pkg/circuitbreaker"
)

// Deps carries the clients a source may need. Only the one matching the
// configured source has to be set; Redis enables the owner cache.
type Deps struct {
	Objects  storage.ObjectStore
	Mongo    *mongo.Database
	Postgres *sql.DB
	Redis    *redis.Client
	Logger   logger.Logger
}

// NewFromConfig builds the resolver chain: source, metrics, circuit breaker
// and cache, innermost first.
func NewFromConfig(cfg *config.Config, deps Deps) (Resolver, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NopLogger()
	}
	ownerCfg := cfg.Owner

	var source Resolver
	switch ownerCfg.Source {
	case constants.OwnerSourceS3:
		if deps.Objects == nil {
			return nil, fmt.Errorf("s3 owner source requires an object store")
		}
		source = NewS3Provider(deps.Objects, ownerCfg.LookupBucket, log)
	case constants.OwnerSourceMongoDB:
		if deps.Mongo == nil {
			return nil, fmt.Errorf("mongodb owner source requires a database")
		}
		source = NewMongoDBProvider(deps.Mongo, ownerCfg.MongoDB.Collection, log)
	case constants.OwnerSourcePostgreSQL:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("postgresql owner source requires a database")
		}
		source = NewPostgreSQLProvider(deps.Postgres, ownerCfg.Postgres.Table, log)
	case constants.OwnerSourceHTTP:
		source = NewHTTPProvider(ownerCfg.LookupURL, ownerCfg.Timeout, log)
	default:
		return nil, fmt.Errorf("unknown owner source: %s", ownerCfg.Source)
	}

	resolver := withMetrics(source, ownerCfg.Source)

	if cfg.CircuitBreaker.Enabled {
		cbCfg := circuitbreaker.Config{
			Name:         "owner-" + ownerCfg.Source,
			MaxRequests:  cfg.CircuitBreaker.MaxRequests,
			Interval:     cfg.CircuitBreaker.Interval,
			Timeout:      cfg.CircuitBreaker.Timeout,
			MinRequests:  cfg.CircuitBreaker.MinRequests,
			FailureRatio: cfg.CircuitBreaker.FailureRatio,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}
		resolver = NewBreakerResolver(resolver, cbCfg)
	}

	if deps.Redis != nil && ownerCfg.CacheTTL > 0 {
		resolver = NewCachedResolver(resolver, deps.Redis, ownerCfg.CacheTTL, log)
	}
	return resolver, nil
}
