package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"ACTS_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "HISTORY_TOPIC",
		"STORAGE_ROOT", "RECONCILIATION_CACHE_TTL", "WORKFLOW_TX_TIMEOUT", "REJECT_MIN_MESSAGE_LEN", "HISTORY_BUFFER"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "document-history", cfg.Kafka.HistoryTopic)
	assert.Equal(t, 30*time.Second, cfg.ReconciliationCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.WorkflowTxTimeout)
	assert.Equal(t, 10, cfg.RejectMinMessageLen)
	assert.Zero(t, cfg.HistoryBuffer)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ACTS_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RECONCILIATION_CACHE_TTL", "2m")
	t.Setenv("REJECT_MIN_MESSAGE_LEN", "25")
	t.Setenv("WORKFLOW_TX_TIMEOUT", "not-a-duration")
	t.Setenv("HISTORY_BUFFER", "256")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Minute, cfg.ReconciliationCacheTTL)
	assert.Equal(t, 25, cfg.RejectMinMessageLen)
	assert.Equal(t, 5*time.Second, cfg.WorkflowTxTimeout)
	assert.Equal(t, 256, cfg.HistoryBuffer)
}
