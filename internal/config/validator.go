package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"leadflow/pkg/cel"
)

// MaxDelay is the longest delay window the scheduler supports. Longer
// delays need a different mechanism.
const MaxDelay = 900 * time.Second

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateStatic checks every section and returns all problems joined.
func ValidateStatic(cfg *Config) error {
	var errs []error
	collect := func(more ...error) {
		for _, err := range more {
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	collect(validateServer(cfg.Server))
	collect(validateStorage(cfg.Storage))
	collect(validateDatabase(cfg.Database))
	collect(validateBroker(cfg.Broker))
	collect(validateIngestion(cfg.Ingestion))
	collect(validateScheduler(cfg.Scheduler)...)
	collect(validateOwner(cfg.Owner, cfg.Database))
	collect(validateNotification(cfg.Notification, cfg.Database)...)
	collect(validateRetry("notification.retry", cfg.Notification.Retry))
	collect(validateRetry("broker.retry", cfg.Broker.Retry))

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return invalid("server.port", "port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return invalid("server.read_timeout", "read and write timeouts must be positive")
	}
	if cfg.MaxBodyBytes <= 0 {
		return invalid("server.max_body_bytes", "max body size must be positive")
	}
	return nil
}

func validateStorage(cfg StorageConfig) error {
	switch cfg.Backend {
	case "minio":
		if cfg.Endpoint == "" {
			return invalid("storage.endpoint", "object store endpoint is required")
		}
	case "memory":
	default:
		return invalid("storage.backend", "unknown storage backend: %s (supported: minio, memory)", cfg.Backend)
	}
	if cfg.Bucket == "" {
		return invalid("storage.bucket", "bucket is required")
	}
	if cfg.SourcePrefix == cfg.TargetPrefix {
		return invalid("storage.target_prefix", "raw and enriched prefixes must differ")
	}
	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Enabled() {
		if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
			return invalid("database.postgres.port", "port must be between 1 and 65535, got %d", cfg.Postgres.Port)
		}
		if cfg.Postgres.User == "" || cfg.Postgres.DBName == "" {
			return invalid("database.postgres.user", "PostgreSQL user and dbname are required")
		}
		validSSLModes := map[string]bool{
			"disable": true, "allow": true, "prefer": true,
			"require": true, "verify-ca": true, "verify-full": true,
		}
		if cfg.Postgres.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.Postgres.SSLMode)] {
			return invalid("database.postgres.sslmode", "invalid SSL mode: %s", cfg.Postgres.SSLMode)
		}
	}

	if cfg.Redis.Enabled() && (cfg.Redis.Port < 1 || cfg.Redis.Port > 65535) {
		return invalid("database.redis.port", "port must be between 1 and 65535, got %d", cfg.Redis.Port)
	}

	if cfg.MongoDB.Enabled() {
		if !strings.HasPrefix(cfg.MongoDB.URI, "mongodb://") && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb+srv://") {
			return invalid("database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
		}
		if cfg.MongoDB.Database == "" {
			return invalid("database.mongodb.database", "MongoDB database name is required")
		}
	}
	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "kafka":
		for i, broker := range cfg.Kafka.Brokers {
			if broker == "" {
				return invalid(fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
			}
		}
	case "nats":
		if cfg.NATS.URL == "" {
			return invalid("broker.nats.url", "NATS URL is required")
		}
	case "memory":
	default:
		return invalid("broker.type", "unknown broker type: %s (supported: kafka, nats, memory)", cfg.Type)
	}
	return nil
}

func validateIngestion(cfg IngestionConfig) error {
	if cfg.SchemaVersion == "" {
		return invalid("ingestion.schema_version", "schema version is required")
	}
	if cfg.AcceptExpression != "" {
		eval, err := cel.NewEvaluator()
		if err != nil {
			return err
		}
		if err := eval.ValidateFilterExpression(cfg.AcceptExpression); err != nil {
			return invalid("ingestion.accept_expression", "%v", err)
		}
	}
	return validateRetry("ingestion.retry", cfg.Retry)
}

func validateScheduler(cfg SchedulerConfig) []error {
	var errs []error
	if cfg.Backend != "redis" && cfg.Backend != "memory" {
		errs = append(errs, invalid("scheduler.backend", "unknown scheduler backend: %s (supported: redis, memory)", cfg.Backend))
	}
	if cfg.Delay < 0 || cfg.Delay > MaxDelay {
		errs = append(errs, invalid("scheduler.delay", "delay must be between 0s and %s, got %s", MaxDelay, cfg.Delay))
	}
	if cfg.MaxAttempts < 1 {
		errs = append(errs, invalid("scheduler.max_attempts", "max_attempts must be at least 1"))
	}
	if cfg.VisibilityTimeout <= 0 {
		errs = append(errs, invalid("scheduler.visibility_timeout", "visibility timeout must be positive"))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, invalid("scheduler.poll_interval", "poll interval must be positive"))
	}
	if cfg.ReconcileInterval < 0 {
		errs = append(errs, invalid("scheduler.reconcile_interval", "reconcile interval must not be negative"))
	}
	if cfg.ReconcileInterval > 0 && cfg.ReconcileBatch < 1 {
		errs = append(errs, invalid("scheduler.reconcile_batch", "reconcile batch must be at least 1"))
	}
	if err := validateRetry("scheduler.retry", cfg.Retry); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateOwner(cfg OwnerConfig, db DatabaseConfig) error {
	switch cfg.Source {
	case "s3":
		if cfg.LookupBucket == "" {
			return invalid("owner.lookup_bucket", "lookup bucket is required for the s3 source")
		}
	case "mongodb":
		if !db.MongoDB.Enabled() {
			return invalid("database.mongodb.uri", "mongodb owner source needs database.mongodb")
		}
	case "postgresql":
		if !db.Postgres.Enabled() {
			return invalid("database.postgres.host", "postgresql owner source needs database.postgres")
		}
		if !isIdentifier(cfg.Postgres.Table) {
			return invalid("owner.postgres.table", "invalid table name %q", cfg.Postgres.Table)
		}
	case "http":
		if !strings.Contains(cfg.LookupURL, "{lead_id}") {
			return invalid("owner.lookup_url", "lookup URL must contain {lead_id}")
		}
		if _, err := url.Parse(strings.ReplaceAll(cfg.LookupURL, "{lead_id}", "x")); err != nil {
			return invalid("owner.lookup_url", "invalid lookup URL: %v", err)
		}
	default:
		return invalid("owner.source", "unknown owner source: %s (supported: s3, mongodb, postgresql, http)", cfg.Source)
	}
	if cfg.Defaults.OwnerName == "" || cfg.Defaults.OwnerEmail == "" {
		return invalid("owner.defaults", "default owner name and email are required")
	}
	if cfg.Timeout <= 0 {
		return invalid("owner.timeout", "owner lookup timeout must be positive")
	}
	return nil
}

func validateNotification(cfg NotificationConfig, db DatabaseConfig) []error {
	var errs []error
	seen := make(map[string]bool)
	for _, ch := range cfg.Channels {
		if seen[ch] {
			errs = append(errs, invalid("notification.channels", "duplicate channel %q", ch))
		}
		seen[ch] = true

		switch ch {
		case "chat":
			if cfg.Chat.WebhookURL == "" {
				errs = append(errs, invalid("notification.chat.webhook_url", "webhook URL is required when chat is enabled"))
			}
		case "email":
			if cfg.Email.Topic == "" {
				errs = append(errs, invalid("notification.email.topic", "topic is required when email is enabled"))
			}
			if len(cfg.Email.Recipients) == 0 {
				errs = append(errs, invalid("notification.email.recipients", "at least one recipient is required when email is enabled"))
			}
		default:
			errs = append(errs, invalid("notification.channels", "unknown channel %q (supported: chat, email)", ch))
		}
	}
	if cfg.MarkerTTL <= 0 || cfg.LeaseTTL <= 0 {
		errs = append(errs, invalid("notification.marker_ttl", "marker and lease TTLs must be positive"))
	}
	switch cfg.Store {
	case "", "memory":
	case "postgres":
		if !db.Postgres.Enabled() {
			errs = append(errs, invalid("notification.store", "postgres record store needs database.postgres"))
		}
	default:
		errs = append(errs, invalid("notification.store", "unknown record store %q", cfg.Store))
	}
	return errs
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 1 {
		return invalid(prefix+".max_attempts", "max_attempts must be at least 1")
	}
	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return invalid(prefix+".initial_interval", "intervals must be non-negative")
	}
	if cfg.MaxInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return invalid(prefix+".max_interval", "max_interval must be greater than or equal to initial_interval")
	}
	if cfg.Multiplier < 1 {
		return invalid(prefix+".multiplier", "multiplier must be at least 1")
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ValidateMailer checks the sections only the mailer service needs.
func ValidateMailer(cfg MailerConfig) error {
	var errs []error
	if cfg.SMTP.Host == "" {
		errs = append(errs, invalid("mailer.smtp.host", "SMTP host is required"))
	}
	if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
		errs = append(errs, invalid("mailer.smtp.port", "port must be between 1 and 65535, got %d", cfg.SMTP.Port))
	}
	if cfg.SMTP.FromEmail == "" {
		errs = append(errs, invalid("mailer.smtp.from_email", "sender address is required"))
	}
	if cfg.Topic == "" {
		errs = append(errs, invalid("mailer.topic", "topic is required"))
	}
	if cfg.DedupTTL <= 0 || cfg.LeaseTTL <= 0 {
		errs = append(errs, invalid("mailer.dedup_ttl", "dedup and lease TTLs must be positive"))
	}
	return errors.Join(errs...)
}
