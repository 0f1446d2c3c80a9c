package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads an optional YAML file, applies defaults and environment
// overrides, then validates the result. An empty path loads defaults and
// environment only.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("storage.backend", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "crm-leads")
	v.SetDefault("storage.source_prefix", "source/")
	v.SetDefault("storage.target_prefix", "target/")

	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.dlq_topic", "lead_email_notifications_dlq")
	v.SetDefault("broker.kafka.group_id", "leadflow-mailer")
	v.SetDefault("broker.nats.url", "nats://localhost:4222")
	v.SetDefault("broker.nats.name", "leadflow")
	v.SetDefault("broker.nats.queue_group", "leadflow-mailer")
	v.SetDefault("broker.nats.max_reconnects", 10)
	v.SetDefault("broker.nats.reconnect_wait", "2s")
	v.SetDefault("broker.nats.timeout", "5s")
	setRetryDefaults(v, "broker.retry", 3, "1s", "10s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("ingestion.schema_version", "1")
	v.SetDefault("ingestion.required_action", "created")
	setRetryDefaults(v, "ingestion.retry", 3, "500ms", "4s")

	v.SetDefault("scheduler.backend", "redis")
	v.SetDefault("scheduler.delay", "600s")
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.visibility_timeout", "120s")
	v.SetDefault("scheduler.poll_interval", "1s")
	v.SetDefault("scheduler.key_prefix", "leadflow:queue")
	v.SetDefault("scheduler.reconcile_interval", "5m")
	v.SetDefault("scheduler.reconcile_batch", 100)
	setRetryDefaults(v, "scheduler.retry", 3, "30s", "300s")

	v.SetDefault("owner.source", "s3")
	v.SetDefault("owner.lookup_bucket", "dea-lead-owner")
	v.SetDefault("owner.timeout", "5s")
	v.SetDefault("owner.cache_ttl", "60s")
	v.SetDefault("owner.mongodb.collection", "lead_owners")
	v.SetDefault("owner.postgres.table", "lead_owners")
	v.SetDefault("owner.defaults.owner_name", "Unassigned")
	v.SetDefault("owner.defaults.owner_email", "not-available@example.com")
	v.SetDefault("owner.defaults.team", "Unknown")

	v.SetDefault("notification.channels", []string{})
	v.SetDefault("notification.chat.timeout", "5s")
	v.SetDefault("notification.email.topic", "lead_email_notifications")
	v.SetDefault("notification.email.include_owner", true)
	v.SetDefault("notification.marker_ttl", "168h")
	v.SetDefault("notification.lease_ttl", "60s")
	setRetryDefaults(v, "notification.retry", 3, "1s", "10s")

	v.SetDefault("mailer.topic", "lead_email_notifications")
	v.SetDefault("mailer.dedup_ttl", "168h")
	v.SetDefault("mailer.lease_ttl", "60s")
	v.SetDefault("mailer.smtp.port", 587)
	v.SetDefault("mailer.smtp.from_name", "Lead Alerts")
	v.SetDefault("mailer.smtp.timeout", "15s")

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.shutdown_timeout", "30s")

	v.SetDefault("admin.rate_limit.enabled", true)
	v.SetDefault("admin.rate_limit.rps", 10)
	v.SetDefault("admin.rate_limit.burst", 20)
	v.SetDefault("admin.rate_limit.cleanup_interval", "1m")
	v.SetDefault("admin.rate_limit.max_age", "10m")

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", "60s")
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 5)

	v.SetDefault("tracing.sampler.type", "parentbased_always_on")
}

func setRetryDefaults(v *viper.Viper, prefix string, attempts int, initial, max string) {
	v.SetDefault(prefix+".max_attempts", attempts)
	v.SetDefault(prefix+".initial_interval", initial)
	v.SetDefault(prefix+".max_interval", max)
	v.SetDefault(prefix+".multiplier", 2.0)
}

// bindEnvVariables binds endpoints and secrets. Where two names are given the
// second is the legacy deployment variable.
func bindEnvVariables(v *viper.Viper) {
	bind := func(key string, envs ...string) {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	bind("storage.endpoint", "STORAGE_ENDPOINT")
	bind("storage.access_key", "STORAGE_ACCESS_KEY")
	bind("storage.secret_key", "STORAGE_SECRET_KEY")
	bind("storage.bucket", "STORAGE_BUCKET", "BUCKET_NAME")
	bind("storage.source_prefix", "STORAGE_SOURCE_PREFIX", "SOURCE_PREFIX")
	bind("storage.target_prefix", "STORAGE_TARGET_PREFIX", "TARGET_PREFIX")
	bind("owner.lookup_bucket", "OWNER_LOOKUP_BUCKET", "LOOKUP_BUCKET")

	bind("database.postgres.host", "DATABASE_POSTGRES_HOST")
	bind("database.postgres.port", "DATABASE_POSTGRES_PORT")
	bind("database.postgres.user", "DATABASE_POSTGRES_USER")
	bind("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	bind("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	bind("database.redis.host", "DATABASE_REDIS_HOST")
	bind("database.redis.port", "DATABASE_REDIS_PORT")
	bind("database.redis.password", "DATABASE_REDIS_PASSWORD")
	bind("database.mongodb.uri", "DATABASE_MONGODB_URI")
	bind("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	bind("broker.nats.url", "BROKER_NATS_URL")
	bind("notification.chat.webhook_url", "NOTIFICATION_CHAT_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	bind("mailer.smtp.host", "MAILER_SMTP_HOST")
	bind("mailer.smtp.username", "MAILER_SMTP_USERNAME")
	bind("mailer.smtp.password", "MAILER_SMTP_PASSWORD")

	bind("server.port", "SERVER_PORT")
	bind("logging.level", "LOGGING_LEVEL")
	bind("tracing.enabled", "TRACING_ENABLED")
	bind("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
}

// applyEnvOverrides handles list-valued variables and the USE_SLACK/USE_EMAIL
// toggles, which viper cannot map onto struct fields directly.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokers := splitList(v.GetString("BROKER_KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Broker.Kafka.Brokers = brokers
	}
	if channels := splitList(v.GetString("NOTIFICATION_CHANNELS")); len(channels) > 0 {
		cfg.Notification.Channels = channels
	}
	if recipients := splitList(v.GetString("NOTIFICATION_EMAIL_RECIPIENTS")); len(recipients) > 0 {
		cfg.Notification.Email.Recipients = recipients
	}

	toggle := func(env, channel string) {
		raw := v.GetString(env)
		if raw == "" {
			return
		}
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return
		}
		cfg.Notification.Channels = setMember(cfg.Notification.Channels, channel, on)
	}
	toggle("USE_SLACK", "chat")
	toggle("USE_EMAIL", "email")
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setMember(list []string, item string, present bool) []string {
	out := make([]string, 0, len(list)+1)
	for _, existing := range list {
		if existing != item {
			out = append(out, existing)
		}
	}
	if present {
		out = append(out, item)
	}
	return out
}
