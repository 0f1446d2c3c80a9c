package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixOwner  = "owner:"
	CacheKeyPrefixGuard  = "guard:"
	CacheKeyPrefixMailer = "mailer:sent:"
)

const (
	ServiceIngest    = "ingest-service"
	ServiceProcessor = "processor-service"
	ServiceMailer    = "mailer-service"
	ServiceAdmin     = "admin-service"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	OwnerSourceS3         = "s3"
	OwnerSourceMongoDB    = "mongodb"
	OwnerSourcePostgreSQL = "postgresql"
	OwnerSourceHTTP       = "http"
)

const (
	BrokerKafka = "kafka"
	BrokerNATS  = "nats"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendMinIO  = "minio"
)

// LeadIDPlaceholder is substituted in owner lookup URLs.
const LeadIDPlaceholder = "{lead_id}"
