package app

import (
	"context"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	v1Http "github.com/DRSN-tech/image-metadata/internal/delivery/v1/http"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/kafka"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/secrets"
	"github.com/DRSN-tech/image-metadata/internal/repository/pgdb"
	pgConverter "github.com/DRSN-tech/image-metadata/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-metadata/internal/repository/redis"
	redisConverter "github.com/DRSN-tech/image-metadata/internal/repository/redis/converter"
	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/clients"
	"github.com/DRSN-tech/image-metadata/pkg/closer"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/jimlawless/whereami"
)

// deadLetters — выбранный бэкенд DLQ. sink и lister равны nil, если бэкенд не задан
// или не поддерживает чтение.
type deadLetters struct {
	sink   usecase.DeadLetterSink
	lister v1Http.DeadLetterLister
	close  closer.Func
}

// initSecretStore создаёт хранилище секретов; клиент AWS не ходит в сеть до первого запроса.
func initSecretStore(ctx context.Context, c *cfg.SecretCfg) (connection.SecretStore, error) {
	if c.Backend == cfg.SecretBackendEnv {
		return secrets.NewEnvStore(), nil
	}

	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRetryMaxAttempts(3)}
	if c.Region != "" {
		opts = append(opts, awsConfig.WithRegion(c.Region))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return secrets.NewSecretsManagerStoreFromConfig(awsCfg), nil
}

// initMetadataUC собирает цепочку хранилище → менеджер соединения → репозиторий → usecase.
// Соединение с БД не открывается до первого сообщения.
func initMetadataUC(
	ctx context.Context,
	config *cfg.Config,
	log logger.Logger,
	m metrics.Metrics,
	opts ...connection.Option,
) (*usecase.MetadataUseCase, *connection.Manager, error) {
	store, err := initSecretStore(ctx, config.Secret)
	if err != nil {
		return nil, nil, e.Wrap(whereami.WhereAmI(), err)
	}

	opts = append([]connection.Option{
		connection.WithMetrics(m),
		connection.WithBootstrapTimeout(config.Db.BootstrapTimeout),
	}, opts...)

	mgr := connection.NewManager(
		config.Secret.SecretID,
		store,
		connection.NewPostgresConnector(config.Db, log.With("component", "postgres")),
		log.With("component", "connection"),
		opts...,
	)

	thingRepo := pgdb.NewThingRepo(mgr, pgConverter.NewThingConverter())

	return usecase.NewMetadataUC(thingRepo, log, m), mgr, nil
}

// initDeadLetters выбирает DLQ по DLQ_BACKEND.
func initDeadLetters(ctx context.Context, config *cfg.Config, log logger.Logger) (*deadLetters, error) {
	switch config.Worker.DLQBackend {
	case cfg.DLQBackendKafka:
		producer := kafka.NewDeadLetterProducer(log.With("component", "dlq"), config.Kafka)
		log.Infof("Dead letters go to kafka topic %s", config.Kafka.DLQTopic)

		return &deadLetters{sink: producer, close: producer.Close}, nil
	case cfg.DLQBackendRedis:
		client := clients.NewRedisClient(config.Redis)
		if err := client.Ping(ctx); err != nil {
			_ = client.Close(ctx)
			log.Errorf(err, "Redis is unreachable at %s", config.Redis.Addr)
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		repo := redis.NewDeadLetterRepo(client, redisConverter.NewDeadLetterConverter(), config.Redis, log.With("component", "dlq"))
		log.Infof("Dead letters go to redis at %s", config.Redis.Addr)

		return &deadLetters{sink: repo, lister: repo, close: client.Close}, nil
	default:
		log.Warnf("DLQ backend is disabled, invalid messages will be dropped")

		return &deadLetters{close: func(context.Context) error { return nil }}, nil
	}
}
