package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
)

// MetadataUseCase сохраняет результаты классификации в хранилище метаданных.
// Между вызовами не хранит ничего: общее соединение живёт в репозитории.
type MetadataUseCase struct {
	thingRepo ThingRepository
	logger    logger.Logger
	metrics   metrics.Metrics
}

func NewMetadataUC(thingRepo ThingRepository, logger logger.Logger, m metrics.Metrics) *MetadataUseCase {
	if m == nil {
		m = metrics.Noop{}
	}

	return &MetadataUseCase{
		thingRepo: thingRepo,
		logger:    logger,
		metrics:   m,
	}
}

// ProcessBatch обрабатывает каждое сообщение пачки независимо от остальных.
// Невалидное сообщение не мешает соседним. Когда бюджет ctx исчерпан,
// все ещё не обработанные сообщения помечаются повторяемыми.
func (m *MetadataUseCase) ProcessBatch(ctx context.Context, batch []Delivery) *BatchResult {
	const op = "MetadataUseCase.ProcessBatch"

	res := &BatchResult{Results: make([]MessageResult, 0, len(batch))}
	if len(batch) == 0 {
		return res
	}

	started := time.Now()
	for _, d := range batch {
		var r MessageResult
		if err := ctx.Err(); err != nil {
			r = MessageResult{Delivery: d, Outcome: OutcomeRetryable, Err: e.Wrap(op, err)}
		} else {
			r = m.processMessage(ctx, d)
		}

		m.metrics.IncMessages(d.Source, r.Outcome.String())
		res.Results = append(res.Results, r)
	}
	elapsed := time.Since(started)
	m.metrics.ObserveBatch(batch[0].Source, len(batch), elapsed)

	m.logger.Infof(
		"batch processed: size=%d inserted=%d duplicate=%d terminal=%d retryable=%d elapsed=%s",
		len(batch),
		res.Count(OutcomeInserted),
		res.Count(OutcomeDuplicate),
		res.Count(OutcomeTerminal),
		res.Count(OutcomeRetryable),
		elapsed,
	)

	return res
}

// processMessage: разбор -> валидация -> идемпотентная вставка.
func (m *MetadataUseCase) processMessage(ctx context.Context, d Delivery) MessageResult {
	const op = "MetadataUseCase.processMessage"

	msg, err := domain.ParseClassificationMessage(d.Body)
	if err != nil {
		m.logger.Warnf("Rejecting message %s from %s: %v", d.ID, d.Source, err)
		return MessageResult{Delivery: d, Outcome: OutcomeTerminal, Err: e.Wrap(op, err)}
	}

	record := msg.ToRecord()
	inserted, err := m.thingRepo.Insert(ctx, record)
	if err != nil {
		err = e.Wrap(op, err)
		outcome := OutcomeRetryable
		if e.IsTerminal(err) {
			outcome = OutcomeTerminal
		}
		m.logger.Errorf(err, "Failed to store metadata for %s (message %s, attempt %d, %s)", record.ImagePath, d.ID, d.Attempt, outcome)
		return MessageResult{Delivery: d, Outcome: outcome, Record: record, Err: err}
	}

	if !inserted {
		m.logger.Infof("Metadata for %s already stored, skipping", record.ImagePath)
		return MessageResult{Delivery: d, Outcome: OutcomeDuplicate, Record: record}
	}

	m.logger.Debugf("Stored metadata for %s: isBeer=%t style=%q", record.ImagePath, record.IsBeer, record.Style)
	return MessageResult{Delivery: d, Outcome: OutcomeInserted, Record: record}
}
