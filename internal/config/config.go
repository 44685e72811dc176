package config

import (
	"os"
	"strings"
)

type Config struct {
	Port           string
	JWTSecret      string
	AllowedOrigins string

	// Streaming
	EnableStreaming    bool
	StreamingBroker    string // "kafka", "rabbitmq", or "" for in-memory
	BrokerHost         string
	BrokerPort         string
	KafkaConsumerGroup string
	AMQPUser           string
	AMQPPass           string

	// Comma-separated entity types with streaming enabled. Empty means all.
	StreamableEntities string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		EnableStreaming:    getEnv("ENABLE_STREAMING", "true") == "true",
		StreamingBroker:    getEnv("STREAMING_BROKER", ""),
		BrokerHost:         getEnv("STREAMING_BROKER_HOST", "localhost"),
		BrokerPort:         getEnv("STREAMING_BROKER_PORT", "9092"),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "entitystream"),
		AMQPUser:           getEnv("AMQP_USER", "guest"),
		AMQPPass:           getEnv("AMQP_PASS", "guest"),

		StreamableEntities: getEnv("STREAMABLE_ENTITIES", ""),
	}
}

// StreamableSet parses StreamableEntities into a lookup set. A nil map means
// every entity type is streamable.
func (c *Config) StreamableSet() map[string]bool {
	if c.StreamableEntities == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, e := range strings.Split(c.StreamableEntities, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			set[strings.ToLower(e)] = true
		}
	}
	return set
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
