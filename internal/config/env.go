package config

import (
	"os"
	"strconv"
	"time"
)

// Tunables holds the §6.6 scalar configuration options, all overridable via
// environment variables and defaulted otherwise.
type Tunables struct {
	UserCacheTTL      time.Duration
	ProcessedEventTTL time.Duration

	OrderConfirmDelay      time.Duration
	OrderShipDelay         time.Duration
	ProcessorInterval      time.Duration
	OutboxBatchSize        int
	OutboxPollInterval     time.Duration
	OutboxErrorBackoff     time.Duration
	OutboxMaxRetryAttempts int
	OutboxErrorMessageMax  int
}

// LoadTunables reads every §6.6 tunable from the environment, falling back
// to the spec's documented defaults.
func LoadTunables() Tunables {
	return Tunables{
		UserCacheTTL:           envDuration("USER_CACHE_TTL", 86400*time.Second),
		ProcessedEventTTL:      envDuration("PROCESSED_EVENT_TTL", 604800*time.Second),
		OrderConfirmDelay:      envDuration("ORDER_CONFIRM_DELAY", 30*time.Second),
		OrderShipDelay:         envDuration("ORDER_SHIP_DELAY", 120*time.Second),
		ProcessorInterval:      envDuration("ORDER_PROCESSOR_INTERVAL", 10*time.Second),
		OutboxBatchSize:        envInt("OUTBOX_BATCH_SIZE", 100),
		OutboxPollInterval:     envDuration("OUTBOX_POLL_INTERVAL_SECONDS", 1*time.Second),
		OutboxErrorBackoff:     envDuration("OUTBOX_ERROR_BACKOFF_SECONDS", 5*time.Second),
		OutboxMaxRetryAttempts: envInt("OUTBOX_MAX_RETRY_ATTEMPTS", 5),
		OutboxErrorMessageMax:  envInt("OUTBOX_ERROR_MESSAGE_MAX_LENGTH", 500),
	}
}

// envInt reads an integer environment variable, falling back to def on
// absence or parse failure. Mirrors the parse-or-default idiom used for
// HTTP query parameters in audit-service's parsePagination.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// envDuration reads an environment variable expressed in whole seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

// envString reads a string environment variable with a default.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Topics names the bus topic per event type (§6.6: "topic names per event type").
type Topics struct {
	OrderCreated   string
	OrderConfirmed string
	OrderShipped   string
	OrderCancelled string
	UserCreated    string
	UserUpdated    string
	UserDeleted    string
}

// LoadTopics reads topic overrides from the environment, defaulting to
// subject names that match the event_type fields they carry.
func LoadTopics() Topics {
	return Topics{
		OrderCreated:   envString("TOPIC_ORDER_CREATED", "order.created"),
		OrderConfirmed: envString("TOPIC_ORDER_CONFIRMED", "order.confirmed"),
		OrderShipped:   envString("TOPIC_ORDER_SHIPPED", "order.shipped"),
		OrderCancelled: envString("TOPIC_ORDER_CANCELLED", "order.cancelled"),
		UserCreated:    envString("TOPIC_USER_CREATED", "user.created"),
		UserUpdated:    envString("TOPIC_USER_UPDATED", "user.updated"),
		UserDeleted:    envString("TOPIC_USER_DELETED", "user.deleted"),
	}
}

// Service carries process identity used for logging and OTel resource
// attributes (SERVICE_NAME, SERVICE_VERSION, ENVIRONMENT, LOG_LEVEL, LOG_FORMAT).
type Service struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
	LogFormat   string
}

// LoadService reads process-identity environment variables.
func LoadService(defaultName string) Service {
	return Service{
		Name:        envString("SERVICE_NAME", defaultName),
		Version:     envString("SERVICE_VERSION", "0.1.0"),
		Environment: envString("ENVIRONMENT", "development"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		LogFormat:   envString("LOG_FORMAT", "json"),
	}
}
