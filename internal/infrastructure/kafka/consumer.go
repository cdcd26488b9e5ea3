package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/jitter"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

const commitTimeout = 5 * time.Second

// messageReader — часть *kafka.Reader, которой пользуется Consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает результаты классификации из топика в составе consumer group.
// Offset пачки фиксируется только когда каждое сообщение либо сохранено,
// либо оказалось дубликатом, либо записано в DLQ.
type Consumer struct {
	reader         messageReader
	uc             usecase.MetadataUC
	dlq            usecase.DeadLetterSink
	cfg            *cfg.KafkaCfg
	processTimeout time.Duration
	backoff        jitter.Backoff
	logger         logger.Logger
	metrics        metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
	sleep  func(ctx context.Context, d time.Duration) bool
}

func NewConsumer(
	cfg *cfg.KafkaCfg,
	processTimeout time.Duration,
	uc usecase.MetadataUC,
	dlq usecase.DeadLetterSink,
	logger logger.Logger,
	m metrics.Metrics,
) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        cfg.BatchWait,
		CommitInterval: 0, // синхронный commit
		StartOffset:    kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warnf("Kafka reader: "+msg, args...)
		}),
	})

	return newConsumer(reader, cfg, processTimeout, uc, dlq, logger, m)
}

func newConsumer(
	reader messageReader,
	cfg *cfg.KafkaCfg,
	processTimeout time.Duration,
	uc usecase.MetadataUC,
	dlq usecase.DeadLetterSink,
	logger logger.Logger,
	m metrics.Metrics,
) *Consumer {
	if m == nil {
		m = metrics.Noop{}
	}

	return &Consumer{
		reader:         reader,
		uc:             uc,
		dlq:            dlq,
		cfg:            cfg,
		processTimeout: processTimeout,
		backoff:        jitter.NewBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay),
		logger:         logger,
		metrics:        m,
		sleep:          sleepCtx,
	}
}

// Start запускает цикл чтения в отдельной горутине.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop останавливает цикл чтения и закрывает reader. Подходит для closer.Func.
func (c *Consumer) Stop(ctx context.Context) error {
	const op = "Consumer.Stop"

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return e.Wrap(op, ctx.Err())
	}

	if err := c.reader.Close(); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

func (c *Consumer) run(ctx context.Context) {
	c.logger.Infof("Consuming %s as group %s", c.cfg.Topic, c.cfg.GroupID)

	fetchFailures := 0
	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Infof("Consumer stopped by context cancellation")
				return
			}

			delay := c.backoff.Delay(fetchFailures)
			fetchFailures++
			c.logger.Warnf("Kafka fetch failed, retrying in %s: %v", delay, err)
			if !c.sleep(ctx, delay) {
				return
			}
			continue
		}
		fetchFailures = 0

		if err := c.handleBatch(ctx, msgs); err != nil {
			// Без commit пачка будет доставлена повторно после ребалансировки или рестарта
			c.logger.Errorf(err, "Batch of %d messages left uncommitted", len(msgs))
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// fetchBatch блокируется до первого сообщения, затем добирает пачку
// до BatchSize или пока не истечёт BatchWait.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	msgs := make([]kafka.Message, 0, c.cfg.BatchSize)
	msgs = append(msgs, first)

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchWait)
	defer cancel()

	for len(msgs) < c.cfg.BatchSize {
		msg, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			// BatchWait истёк или reader вернул ошибку: обрабатываем то, что уже получили
			break
		}
		msgs = append(msgs, msg)
	}

	return msgs, nil
}

// handleBatch доводит каждое сообщение пачки до окончательного состояния и фиксирует offset.
func (c *Consumer) handleBatch(ctx context.Context, msgs []kafka.Message) error {
	const op = "Consumer.handleBatch"

	pending := toDeliveries(msgs)
	var dead []usecase.MessageResult

	for attempt := 0; ; attempt++ {
		processCtx, cancel := context.WithTimeout(ctx, c.processTimeout)
		res := c.uc.ProcessBatch(processCtx, pending)
		cancel()

		dead = append(dead, res.Terminal()...)
		retry := res.Retryable()
		if len(retry) == 0 {
			break
		}
		if ctx.Err() != nil {
			return e.Wrap(op, ctx.Err())
		}
		if attempt >= c.cfg.MaxRetries {
			c.logger.Warnf("%d messages exhausted %d retries, routing to DLQ", len(retry), c.cfg.MaxRetries)
			dead = append(dead, retry...)
			break
		}

		delay := c.backoff.Delay(attempt)
		c.logger.Warnf("%d messages failed with retryable errors, retry %d/%d in %s", len(retry), attempt+1, c.cfg.MaxRetries, delay)
		if !c.sleep(ctx, delay) {
			return e.Wrap(op, ctx.Err())
		}

		pending = make([]usecase.Delivery, 0, len(retry))
		for _, r := range retry {
			d := r.Delivery
			d.Attempt++
			pending = append(pending, d)
		}
	}

	if err := c.deadLetter(ctx, dead); err != nil {
		return e.Wrap(op, err)
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, msgs...); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// deadLetter пишет сообщения в DLQ, повторяя запись до успеха или отмены ctx.
func (c *Consumer) deadLetter(ctx context.Context, results []usecase.MessageResult) error {
	for _, res := range results {
		letter := usecase.NewDeadLetter(res, time.Now())

		if c.dlq == nil {
			c.logger.Errorf(res.Err, "Dropping message %s: no dead-letter sink configured", res.Delivery.ID)
			c.metrics.IncDeadLetters(res.Delivery.Source, letter.Reason)
			continue
		}

		for attempt := 0; ; attempt++ {
			err := c.dlq.Send(ctx, letter)
			if err == nil {
				break
			}

			delay := c.backoff.Delay(attempt)
			c.logger.Errorf(err, "Dead-letter write for %s failed, retrying in %s", res.Delivery.ID, delay)
			if !c.sleep(ctx, delay) {
				return fmt.Errorf("dead-letter write for %s: %w", res.Delivery.ID, err)
			}
		}

		c.metrics.IncDeadLetters(res.Delivery.Source, letter.Reason)
		c.logger.Warnf("Message %s routed to DLQ: %s", res.Delivery.ID, letter.Reason)
	}

	return nil
}

func toDeliveries(msgs []kafka.Message) []usecase.Delivery {
	deliveries := make([]usecase.Delivery, 0, len(msgs))
	for _, m := range msgs {
		deliveries = append(deliveries, usecase.NewDelivery(messageID(m), usecase.SourceKafka, m.Value))
	}

	return deliveries
}

// messageID — topic/partition/offset однозначно определяет сообщение.
func messageID(m kafka.Message) string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
