package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/repository/redis/converter"
	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/clients"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

const (
	deadLetterIndexKey   = "dlq:index"
	deadLetterKeyPrefix  = "dlq:entry:"
	defaultDeadLetterCap = 1000
	defaultListLimit     = 100
)

// DeadLetterRepo хранит последние необработанные сообщения:
// сами записи в dlq:entry:<id>, порядок — в sorted set dlq:index.
type DeadLetterRepo struct {
	client *clients.RedisClient
	conv   converter.DeadLetterConverter
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewDeadLetterRepo(client *clients.RedisClient, conv converter.DeadLetterConverter,
	cfg *cfg.RedisCfg, logger logger.Logger) *DeadLetterRepo {
	return &DeadLetterRepo{
		client: client,
		conv:   conv,
		cfg:    cfg,
		logger: logger,
	}
}

// Send сохраняет запись и обрезает индекс до DLQMaxEntries последних.
func (d *DeadLetterRepo) Send(ctx context.Context, letter *usecase.DeadLetter) error {
	if letter.ID == "" {
		return fmt.Errorf("%s: dead letter id required", whereami.WhereAmI())
	}
	if letter.FailedAt.IsZero() {
		letter.FailedAt = time.Now().UTC()
	}

	data, err := json.Marshal(d.conv.ToRedisModel(letter))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	pipeline := d.client.Client.TxPipeline()
	pipeline.Set(ctx, deadLetterKey(letter.ID), data, 0)
	pipeline.ZAdd(ctx, deadLetterIndexKey, r.Z{Score: float64(letter.FailedAt.UnixMilli()), Member: letter.ID})
	if _, err := pipeline.Exec(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := d.trim(ctx); err != nil {
		// Запись уже сохранена, лишние элементы уберёт следующий Send
		d.logger.Warnf("Dead letter index trim failed: %v", err)
	}

	return nil
}

// List возвращает последние записи, новые первыми.
func (d *DeadLetterRepo) List(ctx context.Context, limit int64) ([]usecase.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids, err := d.client.Client.ZRevRange(ctx, deadLetterIndexKey, 0, limit-1).Result()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if len(ids) == 0 {
		return []usecase.DeadLetter{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = deadLetterKey(id)
	}

	values, err := d.client.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	result := make([]usecase.DeadLetter, 0, len(values))
	for i, val := range values {
		data, err := redisValueToBytes(val, keys[i])
		if err != nil {
			d.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}
		if data == nil {
			continue // запись удалена между ZREVRANGE и MGET
		}

		var model converter.DeadLetterRedisModel
		if err := json.Unmarshal(data, &model); err != nil {
			d.logger.Warnf("Dead letter unmarshal failed (key %s): %v", keys[i], e.Wrap(whereami.WhereAmI(), err))
			continue
		}
		result = append(result, *d.conv.ToUseCase(&model))
	}

	return result, nil
}

func (d *DeadLetterRepo) trim(ctx context.Context) error {
	limit := d.cfg.DLQMaxEntries
	if limit <= 0 {
		limit = defaultDeadLetterCap
	}

	stale, err := d.client.Client.ZRange(ctx, deadLetterIndexKey, 0, -limit-1).Result()
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if len(stale) == 0 {
		return nil
	}

	keys := make([]string, len(stale))
	members := make([]any, len(stale))
	for i, id := range stale {
		keys[i] = deadLetterKey(id)
		members[i] = id
	}

	pipeline := d.client.Client.TxPipeline()
	pipeline.Del(ctx, keys...)
	pipeline.ZRem(ctx, deadLetterIndexKey, members...)
	if _, err := pipeline.Exec(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func deadLetterKey(id string) string {
	return deadLetterKeyPrefix + id
}

// redisValueToBytes конвертирует значение из Redis в []byte.
func redisValueToBytes(val any, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
