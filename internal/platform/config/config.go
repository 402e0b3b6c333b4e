package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "actarchive/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	StorageRoot string

	ReconciliationCacheTTL time.Duration
	WorkflowTxTimeout      time.Duration
	RejectMinMessageLen    int
	ShutdownTimeout        time.Duration

	// HistoryBuffer queues history events for a background writer. Zero
	// writes them inline with the transition.
	HistoryBuffer int
}

// RedisConfig configures the reconciliation cache connection. An empty URL
// disables the cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures history streaming. No brokers disables it.
type KafkaConfig struct {
	Brokers      []string
	HistoryTopic string
}

const (
	defaultAddr         = ":8080"
	defaultStorageRoot  = "./data/archive"
	defaultHistoryTopic = "document-history"
)

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed numeric values fall back to their defaults.
func FromEnv() Server {
	return Server{
		Addr:        envOr("ACTS_ADDR", defaultAddr),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      pstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			HistoryTopic: envOr("HISTORY_TOPIC", defaultHistoryTopic),
		},
		StorageRoot:            envOr("STORAGE_ROOT", defaultStorageRoot),
		ReconciliationCacheTTL: envDuration("RECONCILIATION_CACHE_TTL", 30*time.Second),
		WorkflowTxTimeout:      envDuration("WORKFLOW_TX_TIMEOUT", 5*time.Second),
		RejectMinMessageLen:    envInt("REJECT_MIN_MESSAGE_LEN", 10),
		ShutdownTimeout:        envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HistoryBuffer:          envInt("HISTORY_BUFFER", 0),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
