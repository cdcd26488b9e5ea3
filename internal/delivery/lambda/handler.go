// Package lambda принимает результаты классификации из SNS и SQS в AWS Lambda.
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

const (
	eventSourceSNS = "aws:sns"
	eventSourceSQS = "aws:sqs"

	// Запас до дедлайна Lambda, чтобы успеть вернуть частичный ответ
	deadlineMargin = 500 * time.Millisecond
)

var ErrUnsupportedEvent = fmt.Errorf("unsupported lambda event")

type Handler struct {
	uc     usecase.MetadataUC
	dlq    usecase.DeadLetterSink
	logger logger.Logger
}

func NewHandler(uc usecase.MetadataUC, dlq usecase.DeadLetterSink, logger logger.Logger) *Handler {
	return &Handler{
		uc:     uc,
		dlq:    dlq,
		logger: logger,
	}
}

// Handle определяет тип события по eventSource первой записи.
// Для SQS возвращает events.SQSEventResponse, для SNS — nil.
func (h *Handler) Handle(ctx context.Context, raw json.RawMessage) (any, error) {
	const op = "Handler.Handle"

	var probe struct {
		Records []struct {
			EventSource string `json:"eventSource"` // у SNS ключ EventSource, json сопоставит без учёта регистра
		} `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, e.Wrap(op, err)
	}
	if len(probe.Records) == 0 {
		h.logger.Warnf("Received event without records, nothing to do")
		return nil, nil
	}

	switch probe.Records[0].EventSource {
	case eventSourceSQS:
		var event events.SQSEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, e.Wrap(op, err)
		}
		return h.HandleSQS(ctx, event)
	case eventSourceSNS:
		var event events.SNSEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, e.Wrap(op, err)
		}
		return nil, h.HandleSNS(ctx, event)
	default:
		return nil, e.Wrap(op, fmt.Errorf("%w: %q", ErrUnsupportedEvent, probe.Records[0].EventSource))
	}
}

// HandleSNS возвращает ошибку, если хотя бы одно сообщение нужно доставить повторно:
// тогда SNS/Lambda повторит вызов целиком, а сохранённые записи окажутся дубликатами.
func (h *Handler) HandleSNS(ctx context.Context, event events.SNSEvent) error {
	const op = "Handler.HandleSNS"

	batch := make([]usecase.Delivery, 0, len(event.Records))
	for _, record := range event.Records {
		batch = append(batch, usecase.NewDelivery(record.SNS.MessageID, usecase.SourceSNS, []byte(record.SNS.Message)))
	}

	failed := h.process(ctx, batch)
	if len(failed) > 0 {
		return e.Wrap(op, fmt.Errorf("%d of %d messages must be redelivered", len(failed), len(batch)))
	}

	return nil
}

// HandleSQS сообщает в BatchItemFailures только сообщения, которые нужно доставить повторно.
func (h *Handler) HandleSQS(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	batch := make([]usecase.Delivery, 0, len(event.Records))
	for _, record := range event.Records {
		d := usecase.NewDelivery(record.MessageId, usecase.SourceSQS, unwrapSNSEnvelope([]byte(record.Body)))
		if n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"]); err == nil && n > 0 {
			d.Attempt = n
		}
		batch = append(batch, d)
	}

	resp := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
	for _, id := range h.process(ctx, batch) {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}

	return resp, nil
}

// process возвращает идентификаторы сообщений, которые нужно доставить повторно.
func (h *Handler) process(ctx context.Context, batch []usecase.Delivery) []string {
	log := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		log = log.With("request_id", lc.AwsRequestID)
	}

	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-deadlineMargin))
		defer cancel()
	}

	res := h.uc.ProcessBatch(ctx, batch)

	var failed []string
	for _, r := range res.Results {
		switch r.Outcome {
		case usecase.OutcomeRetryable:
			failed = append(failed, r.Delivery.ID)
		case usecase.OutcomeTerminal:
			if !h.deadLetter(context.WithoutCancel(ctx), log, r) {
				failed = append(failed, r.Delivery.ID)
			}
		}
	}

	if len(failed) > 0 {
		log.Warnf("%d of %d messages will be redelivered", len(failed), len(batch))
	}

	return failed
}

// deadLetter возвращает false, если сообщение не удалось сохранить в DLQ
// и его нужно вернуть в очередь, чтобы не потерять.
func (h *Handler) deadLetter(ctx context.Context, log logger.Logger, r usecase.MessageResult) bool {
	if h.dlq == nil {
		log.Errorf(r.Err, "Discarding invalid message %s", r.Delivery.ID)
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, deadlineMargin)
	defer cancel()

	if err := h.dlq.Send(ctx, usecase.NewDeadLetter(r, time.Now())); err != nil {
		log.Errorf(err, "Dead-letter write for %s failed", r.Delivery.ID)
		return false
	}

	log.Warnf("Invalid message %s routed to DLQ: %v", r.Delivery.ID, r.Err)
	return true
}

// snsEnvelope — уведомление SNS, доставленное в SQS без raw message delivery.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func unwrapSNSEnvelope(body []byte) []byte {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if env.Type != "Notification" || env.Message == "" {
		return body
	}

	return []byte(env.Message)
}
