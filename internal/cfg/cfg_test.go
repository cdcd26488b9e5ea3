package cfg

import (
	"testing"
	"time"

	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_SECRET", "beer/metadata-db")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "image-labels")
	t.Setenv("KAFKA_DLQ_TOPIC", "image-labels-dlq")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load(logger.Nop{})
	require.NoError(t, err)

	assert.Equal(t, "beer/metadata-db", cfg.Secret.SecretID)
	assert.Equal(t, SecretBackendAWS, cfg.Secret.Backend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "metadata-storage", cfg.Kafka.GroupID)
	assert.Equal(t, 10, cfg.Kafka.BatchSize)
	assert.Equal(t, 3, cfg.Kafka.MaxRetries)
	assert.Equal(t, "require", cfg.Db.SSLMode)
	assert.Equal(t, int32(4), cfg.Db.MaxConns)
	assert.True(t, cfg.Db.RunMigrations)
	assert.Equal(t, 30*time.Second, cfg.Worker.ProcessTimeout)
	assert.Equal(t, DLQBackendKafka, cfg.Worker.DLQBackend)
	assert.Equal(t, "8080", cfg.Http.Port)
	assert.Equal(t, "8091", cfg.Grpc.Port)
	assert.Equal(t, int64(1000), cfg.Redis.DLQMaxEntries)
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SECRET_BACKEND", "env")
	t.Setenv("DLQ_BACKEND", "redis")
	t.Setenv("KAFKA_DLQ_TOPIC", "")
	t.Setenv("PROCESS_TIMEOUT", "5s")
	t.Setenv("RUN_MIGRATIONS", "false")
	t.Setenv("KAFKA_BATCH_SIZE", "25")

	cfg, err := Load(logger.Nop{})
	require.NoError(t, err)

	assert.Equal(t, SecretBackendEnv, cfg.Secret.Backend)
	assert.Equal(t, DLQBackendRedis, cfg.Worker.DLQBackend)
	assert.Equal(t, 5*time.Second, cfg.Worker.ProcessTimeout)
	assert.False(t, cfg.Db.RunMigrations)
	assert.Equal(t, 25, cfg.Kafka.BatchSize)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "missing secret", key: "DB_SECRET", val: ""},
		{name: "unknown secret backend", key: "SECRET_BACKEND", val: "vault"},
		{name: "unknown dlq backend", key: "DLQ_BACKEND", val: "s3"},
		{name: "missing brokers", key: "KAFKA_BROKERS", val: " , "},
		{name: "missing topic", key: "KAFKA_TOPIC", val: ""},
		{name: "missing dlq topic", key: "KAFKA_DLQ_TOPIC", val: ""},
		{name: "bad batch size", key: "KAFKA_BATCH_SIZE", val: "0"},
		{name: "bad timeout", key: "PROCESS_TIMEOUT", val: "soon"},
		{name: "bad max conns", key: "POSTGRES_MAX_CONNS", val: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load(logger.Nop{})
			assert.Error(t, err)
		})
	}
}

func TestLoadLambdaWithoutKafka(t *testing.T) {
	t.Setenv("DB_SECRET", "beer/metadata-db")
	t.Setenv("DLQ_BACKEND", "none")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")

	cfg, err := LoadLambda(logger.Nop{})
	require.NoError(t, err)

	assert.Nil(t, cfg.Kafka)
	assert.Equal(t, DLQBackendNone, cfg.Worker.DLQBackend)
}

func TestLoadLambdaKafkaDLQRequiresTopic(t *testing.T) {
	t.Setenv("DB_SECRET", "beer/metadata-db")
	t.Setenv("DLQ_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("KAFKA_DLQ_TOPIC", "")

	_, err := LoadLambda(logger.Nop{})
	assert.Error(t, err)
}
