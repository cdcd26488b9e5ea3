package app

import (
	"context"
	"testing"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/kafka"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/secrets"
	"github.com/DRSN-tech/image-metadata/internal/repository/redis"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(backend string) *cfg.Config {
	return &cfg.Config{
		Secret: &cfg.SecretCfg{SecretID: "DB_CREDENTIALS", Backend: cfg.SecretBackendEnv},
		Db:     &cfg.PGDBCfg{BootstrapTimeout: time.Second},
		Kafka:  &cfg.KafkaCfg{Brokers: []string{"localhost:9092"}, DLQTopic: "classified-dlq"},
		Redis:  &cfg.RedisCfg{DialTimeout: 100 * time.Millisecond, Timeout: 100 * time.Millisecond, DLQMaxEntries: 10},
		Worker: &cfg.WorkerCfg{DLQBackend: backend},
	}
}

func TestInitSecretStoreEnv(t *testing.T) {
	store, err := initSecretStore(context.Background(), &cfg.SecretCfg{SecretID: "X", Backend: cfg.SecretBackendEnv})

	require.NoError(t, err)
	assert.IsType(t, &secrets.EnvStore{}, store)
}

func TestInitMetadataUCDoesNotConnectEagerly(t *testing.T) {
	_, mgr, err := initMetadataUC(context.Background(), testConfig(cfg.DLQBackendNone), logger.Nop{}, metrics.Noop{})

	require.NoError(t, err)
	assert.Equal(t, connection.Uninitialized, mgr.State())
}

func TestInitDeadLettersNone(t *testing.T) {
	dlq, err := initDeadLetters(context.Background(), testConfig(cfg.DLQBackendNone), logger.Nop{})

	require.NoError(t, err)
	assert.Nil(t, dlq.sink)
	assert.Nil(t, dlq.lister)
	assert.NoError(t, dlq.close(context.Background()))
}

func TestInitDeadLettersKafka(t *testing.T) {
	dlq, err := initDeadLetters(context.Background(), testConfig(cfg.DLQBackendKafka), logger.Nop{})

	require.NoError(t, err)
	assert.IsType(t, &kafka.DeadLetterProducer{}, dlq.sink)
	assert.Nil(t, dlq.lister)
	assert.NoError(t, dlq.close(context.Background()))
}

func TestInitDeadLettersRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	config := testConfig(cfg.DLQBackendRedis)
	config.Redis.Addr = srv.Addr()

	dlq, err := initDeadLetters(context.Background(), config, logger.Nop{})

	require.NoError(t, err)
	assert.IsType(t, &redis.DeadLetterRepo{}, dlq.sink)
	assert.NotNil(t, dlq.lister)
	assert.NoError(t, dlq.close(context.Background()))
}

func TestInitDeadLettersRedisUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	config := testConfig(cfg.DLQBackendRedis)
	config.Redis.Addr = srv.Addr()
	srv.Close()

	_, err := initDeadLetters(context.Background(), config, logger.Nop{})

	assert.Error(t, err)
}
