package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

const (
	SecretBackendAWS = "aws"
	SecretBackendEnv = "env"

	DLQBackendKafka = "kafka"
	DLQBackendRedis = "redis"
	DLQBackendNone  = "none"
)

type Config struct {
	Secret *SecretCfg
	Db     *PGDBCfg
	Kafka  *KafkaCfg
	Redis  *RedisCfg
	Http   *HTTPConfig
	Grpc   *GRPCConfig
	Worker *WorkerCfg
}

type SecretCfg struct {
	SecretID string // Идентификатор секрета с реквизитами БД (DB_SECRET)
	Backend  string // aws | env
	Region   string // регион AWS, пусто — из окружения SDK
}

type PGDBCfg struct {
	SSLMode          string
	MaxConns         int32
	ConnectTimeout   time.Duration // Таймаут установки соединения и ping
	BootstrapTimeout time.Duration // Общий бюджет bootstrap: секрет + соединение + миграции
	RunMigrations    bool
}

type KafkaCfg struct {
	Brokers        []string
	Topic          string
	GroupID        string
	DLQTopic       string
	BatchSize      int
	BatchWait      time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

type RedisCfg struct {
	Addr          string
	Password      string
	User          string
	DB            int
	MaxRetries    int
	DialTimeout   time.Duration
	Timeout       time.Duration
	DLQMaxEntries int64
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type WorkerCfg struct {
	ProcessTimeout  time.Duration // Бюджет обработки одной пачки сообщений
	DLQBackend      string        // kafka | redis | none
	ShutdownTimeout time.Duration
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Файл .env, если он есть, подхватывается для локального запуска.
func Load(log logger.Logger) (*Config, error) {
	_ = godotenv.Load()

	secret, err := loadSecretCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	worker, err := loadWorkerCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg(worker.DLQBackend)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Secret: secret,
		Db:     db,
		Kafka:  kafka,
		Redis:  redis,
		Http:   http,
		Grpc:   loadGRPCConfig(),
		Worker: worker,
	}, nil
}

// LoadLambda загружает только то, что нужно обработчику Lambda: секрет, БД и DLQ.
// Kafka-консьюмер в Lambda не используется, поэтому KAFKA_* не обязательны.
func LoadLambda(log logger.Logger) (*Config, error) {
	secret, err := loadSecretCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	worker, err := loadWorkerCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	cfg := &Config{Secret: secret, Db: db, Redis: redis, Worker: worker}
	if worker.DLQBackend == DLQBackendKafka {
		brokers := splitList(getEnv("KAFKA_BROKERS"))
		topic := getEnv("KAFKA_DLQ_TOPIC")
		if len(brokers) == 0 || topic == "" {
			return nil, fmt.Errorf("KAFKA_BROKERS and KAFKA_DLQ_TOPIC are required for kafka DLQ backend")
		}
		cfg.Kafka = &KafkaCfg{Brokers: brokers, DLQTopic: topic}
	}

	return cfg, nil
}

func loadSecretCfg(log logger.Logger) (*SecretCfg, error) {
	secretID := getEnv("DB_SECRET")
	if secretID == "" {
		err := fmt.Errorf("DB_SECRET is required")
		log.Errorf(err, "missing DB_SECRET")
		return nil, err
	}

	backend := strings.ToLower(getEnvOrDefault("SECRET_BACKEND", SecretBackendAWS))
	switch backend {
	case SecretBackendAWS, SecretBackendEnv:
	default:
		err := fmt.Errorf("%w: SECRET_BACKEND=%s", e.ErrIncorrectEnvVariable, backend)
		log.Errorf(err, "invalid SECRET_BACKEND")
		return nil, err
	}

	return &SecretCfg{
		SecretID: secretID,
		Backend:  backend,
		Region:   getEnv("AWS_REGION"),
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultSSLMode          = "require"
		defaultMaxConns         = 4
		defaultConnectTimeout   = 5 * time.Second
		defaultBootstrapTimeout = 20 * time.Second
		defaultRunMigrations    = true
	)

	maxConns, err := parseIntEnv("POSTGRES_MAX_CONNS", defaultMaxConns)
	if err != nil || maxConns <= 0 {
		err = fmt.Errorf("%w: POSTGRES_MAX_CONNS", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid POSTGRES_MAX_CONNS")
		return nil, err
	}

	connectTimeout, err := parseDurationEnv("POSTGRES_CONNECT_TIMEOUT", defaultConnectTimeout)
	if err != nil {
		log.Errorf(err, "invalid POSTGRES_CONNECT_TIMEOUT")
		return nil, err
	}

	bootstrapTimeout, err := parseDurationEnv("BOOTSTRAP_TIMEOUT", defaultBootstrapTimeout)
	if err != nil {
		log.Errorf(err, "invalid BOOTSTRAP_TIMEOUT")
		return nil, err
	}

	runMigrations, err := parseBoolEnv("RUN_MIGRATIONS", defaultRunMigrations)
	if err != nil {
		log.Errorf(err, "invalid RUN_MIGRATIONS")
		return nil, err
	}

	return &PGDBCfg{
		SSLMode:          getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MaxConns:         int32(maxConns),
		ConnectTimeout:   connectTimeout,
		BootstrapTimeout: bootstrapTimeout,
		RunMigrations:    runMigrations,
	}, nil
}

func loadKafkaCfg(dlqBackend string) (*KafkaCfg, error) {
	const (
		defaultGroupID        = "metadata-storage"
		defaultBatchSize      = 10
		defaultBatchWait      = 500 * time.Millisecond
		defaultMaxRetries     = 3
		defaultRetryBaseDelay = 500 * time.Millisecond
		defaultRetryMaxDelay  = 10 * time.Second
	)

	brokers := splitList(getEnv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	topic := getEnv("KAFKA_TOPIC")
	if topic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC environment variable is required")
	}

	dlqTopic := getEnv("KAFKA_DLQ_TOPIC")
	if dlqBackend == DLQBackendKafka && dlqTopic == "" {
		return nil, fmt.Errorf("KAFKA_DLQ_TOPIC environment variable is required for kafka DLQ backend")
	}

	batchSize, err := parseIntEnv("KAFKA_BATCH_SIZE", defaultBatchSize)
	if err != nil || batchSize <= 0 {
		return nil, e.Wrap("KAFKA_BATCH_SIZE", e.ErrIncorrectEnvVariable)
	}

	batchWait, err := parseDurationEnv("KAFKA_BATCH_WAIT", defaultBatchWait)
	if err != nil {
		return nil, e.Wrap("KAFKA_BATCH_WAIT", err)
	}

	maxRetries, err := parseIntEnv("KAFKA_MAX_RETRIES", defaultMaxRetries)
	if err != nil || maxRetries < 0 {
		return nil, e.Wrap("KAFKA_MAX_RETRIES", e.ErrIncorrectEnvVariable)
	}

	baseDelay, err := parseDurationEnv("KAFKA_RETRY_BASE_DELAY", defaultRetryBaseDelay)
	if err != nil {
		return nil, e.Wrap("KAFKA_RETRY_BASE_DELAY", err)
	}

	maxDelay, err := parseDurationEnv("KAFKA_RETRY_MAX_DELAY", defaultRetryMaxDelay)
	if err != nil {
		return nil, e.Wrap("KAFKA_RETRY_MAX_DELAY", err)
	}

	return &KafkaCfg{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        getEnvOrDefault("KAFKA_GROUP_ID", defaultGroupID),
		DLQTopic:       dlqTopic,
		BatchSize:      batchSize,
		BatchWait:      batchWait,
		MaxRetries:     maxRetries,
		RetryBaseDelay: baseDelay,
		RetryMaxDelay:  maxDelay,
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr          = "localhost:6379"
		defaultDB            = 0
		defaultMaxRetries    = 3
		defaultDialTimeout   = 5 * time.Second
		defaultTimeout       = 3 * time.Second
		defaultDLQMaxEntries = 1000
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("REDIS_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid REDIS_MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("REDIS_DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DIAL_TIMEOUT")
		return nil, err
	}

	timeout, err := parseDurationEnv("REDIS_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid REDIS_TIMEOUT")
		return nil, err
	}

	maxEntries, err := parseIntEnv("REDIS_DLQ_MAX_ENTRIES", defaultDLQMaxEntries)
	if err != nil || maxEntries <= 0 {
		err = fmt.Errorf("%w: REDIS_DLQ_MAX_ENTRIES", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid REDIS_DLQ_MAX_ENTRIES")
		return nil, err
	}

	return &RedisCfg{
		Addr:          getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:      getEnv("REDIS_PASSWORD"),
		User:          getEnv("REDIS_USER"),
		DB:            db,
		MaxRetries:    maxRetries,
		DialTimeout:   dialTimeout,
		Timeout:       timeout,
		DLQMaxEntries: int64(maxEntries),
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 5 * time.Second
		defaultWriteTimeout = 10 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

func loadGRPCConfig() *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault("GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadWorkerCfg(log logger.Logger) (*WorkerCfg, error) {
	const (
		defaultProcessTimeout  = 30 * time.Second
		defaultShutdownTimeout = 10 * time.Second
	)

	processTimeout, err := parseDurationEnv("PROCESS_TIMEOUT", defaultProcessTimeout)
	if err != nil || processTimeout <= 0 {
		err = fmt.Errorf("%w: PROCESS_TIMEOUT", e.ErrIncorrectEnvVariable)
		log.Errorf(err, "invalid PROCESS_TIMEOUT")
		return nil, err
	}

	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	if err != nil {
		log.Errorf(err, "invalid SHUTDOWN_TIMEOUT")
		return nil, err
	}

	backend := strings.ToLower(getEnvOrDefault("DLQ_BACKEND", DLQBackendKafka))
	switch backend {
	case DLQBackendKafka, DLQBackendRedis, DLQBackendNone:
	default:
		err := fmt.Errorf("%w: DLQ_BACKEND=%s", e.ErrIncorrectEnvVariable, backend)
		log.Errorf(err, "invalid DLQ_BACKEND")
		return nil, err
	}

	return &WorkerCfg{
		ProcessTimeout:  processTimeout,
		DLQBackend:      backend,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	return strconv.ParseBool(v)
}

// splitList разбивает список через запятую, отбрасывая пустые элементы.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
