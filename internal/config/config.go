package config

import (
	"time"

	"leadflow/pkg/retry"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Ingestion      IngestionConfig      `mapstructure:"ingestion"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Owner          OwnerConfig          `mapstructure:"owner"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Mailer         MailerConfig         `mapstructure:"mailer"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Admin          AdminConfig          `mapstructure:"admin"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// StorageConfig addresses the S3-compatible object store that holds raw and
// enriched lead records.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"` // "minio" or "memory"
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Bucket       string `mapstructure:"bucket"`
	SourcePrefix string `mapstructure:"source_prefix"`
	TargetPrefix string `mapstructure:"target_prefix"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

func (c MongoDBConfig) Enabled() bool {
	return c.URI != ""
}

// BrokerConfig selects the pub/sub transport for email events.
type BrokerConfig struct {
	Type     string      `mapstructure:"type"` // "kafka" or "nats"
	DLQTopic string      `mapstructure:"dlq_topic"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
	NATS     NATSConfig  `mapstructure:"nats"`
	Retry    RetryConfig `mapstructure:"retry"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	QueueGroup    string        `mapstructure:"queue_group"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// Policy converts the section into a retry policy with library jitter.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		Multiplier:      c.Multiplier,
		MaxElapsedTime:  c.MaxElapsedTime,
		Jitter:          -1,
	}
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type IngestionConfig struct {
	SchemaVersion    string      `mapstructure:"schema_version"`
	RequiredAction   string      `mapstructure:"required_action"`
	AcceptExpression string      `mapstructure:"accept_expression"`
	Retry            RetryConfig `mapstructure:"retry"`
}

// SchedulerConfig controls the delay window and the retry/dead-letter policy
// of delivery tasks.
type SchedulerConfig struct {
	Backend           string        `mapstructure:"backend"` // "redis" or "memory"
	Delay             time.Duration `mapstructure:"delay"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	Retry             RetryConfig   `mapstructure:"retry"`
	// ReconcileInterval is how often stored raw records without an enriched
	// record are re-scheduled. Zero disables the sweep.
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileBatch    int           `mapstructure:"reconcile_batch"`
}

type OwnerConfig struct {
	Source       string              `mapstructure:"source"` // s3, mongodb, postgresql, http
	LookupBucket string              `mapstructure:"lookup_bucket"`
	LookupURL    string              `mapstructure:"lookup_url"`
	Timeout      time.Duration       `mapstructure:"timeout"`
	CacheTTL     time.Duration       `mapstructure:"cache_ttl"`
	MongoDB      OwnerMongoConfig    `mapstructure:"mongodb"`
	Postgres     OwnerPostgresConfig `mapstructure:"postgres"`
	Defaults     OwnerDefaults       `mapstructure:"defaults"`
}

type OwnerMongoConfig struct {
	Collection string `mapstructure:"collection"`
}

type OwnerPostgresConfig struct {
	Table string `mapstructure:"table"`
}

type OwnerDefaults struct {
	OwnerName  string `mapstructure:"owner_name"`
	OwnerEmail string `mapstructure:"owner_email"`
	Team       string `mapstructure:"team"`
}

type NotificationConfig struct {
	Channels  []string      `mapstructure:"channels"`
	Chat      ChatConfig    `mapstructure:"chat"`
	Email     EmailConfig   `mapstructure:"email"`
	MarkerTTL time.Duration `mapstructure:"marker_ttl"`
	LeaseTTL  time.Duration `mapstructure:"lease_ttl"`
	Store     string        `mapstructure:"store"` // "postgres", "memory" or ""
	Retry     RetryConfig   `mapstructure:"retry"`
}

type ChatConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EmailConfig struct {
	Topic        string   `mapstructure:"topic"`
	Recipients   []string `mapstructure:"recipients"`
	IncludeOwner bool     `mapstructure:"include_owner"`
}

// MailerConfig drives the SMTP delivery service. DedupTTL bounds how long a
// delivered event id suppresses redelivered copies.
type MailerConfig struct {
	SMTP     SMTPConfig    `mapstructure:"smtp"`
	Topic    string        `mapstructure:"topic"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

type SMTPConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AdminConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
