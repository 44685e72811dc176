package broker

import (
	"fmt"
	"log"

	"github.com/lumenforge/entitystream/internal/config"
)

// NewBroker creates a MessageBroker based on the application configuration.
// STREAMING_BROKER selects the backend: "kafka" for the log broker,
// "rabbitmq" for the queue broker, anything else falls back to the
// in-memory broker suitable for single-node deployments.
func NewBroker(cfg *config.Config) (MessageBroker, error) {
	switch cfg.StreamingBroker {
	case "kafka":
		addr := cfg.BrokerHost + ":" + cfg.BrokerPort
		log.Printf("broker: using KafkaBroker at %s group=%s", addr, cfg.KafkaConsumerGroup)
		return NewKafkaBroker(KafkaConfig{
			Brokers:       []string{addr},
			ConsumerGroup: cfg.KafkaConsumerGroup,
		})
	case "rabbitmq":
		url := fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.AMQPUser, cfg.AMQPPass, cfg.BrokerHost, cfg.BrokerPort)
		log.Printf("broker: using AMQPBroker at %s:%s", cfg.BrokerHost, cfg.BrokerPort)
		return NewAMQPBroker(AMQPConfig{URL: url})
	default:
		log.Println("broker: using InMemoryBroker (STREAMING_BROKER not set)")
		return NewInMemoryBroker(), nil
	}
}
