package broker

import (
	"testing"

	"github.com/lumenforge/entitystream/internal/config"
)

func TestNewBroker_DefaultsToInMemory(t *testing.T) {
	b, err := NewBroker(&config.Config{})
	if err != nil {
		t.Fatalf("NewBroker failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*InMemoryBroker); !ok {
		t.Errorf("expected *InMemoryBroker, got %T", b)
	}
}

func TestNewBroker_Kafka(t *testing.T) {
	// The kafka writer dials lazily, so construction succeeds without a
	// reachable broker.
	b, err := NewBroker(&config.Config{
		StreamingBroker:    "kafka",
		BrokerHost:         "localhost",
		BrokerPort:         "9092",
		KafkaConsumerGroup: "test-group",
	})
	if err != nil {
		t.Fatalf("NewBroker failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*KafkaBroker); !ok {
		t.Errorf("expected *KafkaBroker, got %T", b)
	}
}

func TestNewKafkaBroker_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaBroker(KafkaConfig{}); err == nil {
		t.Error("expected error for empty broker list")
	}
}

func TestNewAMQPBroker_RequiresURL(t *testing.T) {
	if _, err := NewAMQPBroker(AMQPConfig{}); err == nil {
		t.Error("expected error for empty URL")
	}
}
