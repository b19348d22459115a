package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateConsumerID creates a unique consumer name using hostname and PID
func generateConsumerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "indexer"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// Entity store (remote mail store)
	EntityStoreURL        string
	EntityStoreToken      string
	EntityStoreTimeoutSec int

	// Database key for index encryption
	DBEncryptionKey string

	// Worker
	ConsumerID     string
	WorkerCount    int
	WorkerBatch    int
	WorkerChanSize int

	// Consumer (Redis Stream)
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerPendingIdleSec  int

	// Body cache
	BodyCacheTTLDays int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailindex"),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Entity store
		EntityStoreURL:        getEnv("ENTITY_STORE_URL", ""),
		EntityStoreToken:      getEnv("ENTITY_STORE_TOKEN", ""),
		EntityStoreTimeoutSec: getEnvInt("ENTITY_STORE_TIMEOUT_SEC", 30),

		// Encryption
		DBEncryptionKey: getEnv("DB_ENCRYPTION_KEY", ""),

		// Worker
		ConsumerID:     getEnv("CONSUMER_ID", generateConsumerID()),
		WorkerCount:    getEnvInt("WORKER_COUNT", 4),
		WorkerBatch:    getEnvInt("WORKER_BATCH_SIZE", 10),
		WorkerChanSize: getEnvInt("WORKER_CHAN_SIZE", 100),

		// Consumer
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),
		ConsumerPendingIdleSec:  getEnvInt("CONSUMER_PENDING_IDLE_SEC", 120),

		// Body cache
		BodyCacheTTLDays: getEnvInt("BODY_CACHE_TTL_DAYS", 7),

		// CORS
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.DBEncryptionKey == "" {
		return nil, fmt.Errorf("DB_ENCRYPTION_KEY must be set")
	}

	return cfg, nil
}

// EntityStoreTimeout returns the configured fetch timeout.
func (c *Config) EntityStoreTimeout() time.Duration {
	return time.Duration(c.EntityStoreTimeoutSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
