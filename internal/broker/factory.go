package broker

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
)

// NewProducer builds the producer for cfg.Type. conn is required for NATS and
// ignored otherwise.
func NewProducer(cfg config.BrokerConfig, conn *nats.Conn, serviceName string, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaProducer(cfg.Kafka, serviceName, log), nil
	case constants.BrokerNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats producer requires a connection")
		}
		return NewNATSProducer(conn, cfg.NATS, serviceName), nil
	case constants.BackendMemory:
		return NewMemoryBroker(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, conn *nats.Conn, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaConsumer(cfg, log), nil
	case constants.BrokerNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats consumer requires a connection")
		}
		return NewNATSConsumer(conn, cfg, log), nil
	case constants.BackendMemory:
		return NewMemoryBroker(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
