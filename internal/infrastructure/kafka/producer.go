package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterProducer пишет необработанные сообщения в DLQ-топик.
type DeadLetterProducer struct {
	writer messageWriter
	logger logger.Logger
	cfg    *cfg.KafkaCfg
}

// deadLetterMessage — JSON-значение записи в DLQ-топике.
type deadLetterMessage struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RawBody   string          `json:"rawBody,omitempty"` // если исходное тело — не JSON
	Reason    string          `json:"reason"`
	Error     string          `json:"error,omitempty"`
	Terminal  bool            `json:"terminal"`
	Attempts  int             `json:"attempts"`
	FailedAt  time.Time       `json:"failedAt"`
}

func NewDeadLetterProducer(logger logger.Logger, cfg *cfg.KafkaCfg) *DeadLetterProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}

	return &DeadLetterProducer{
		writer: writer,
		logger: logger,
		cfg:    cfg,
	}
}

// Send синхронно пишет запись; ключ — идентификатор исходного сообщения.
func (p *DeadLetterProducer) Send(ctx context.Context, letter *usecase.DeadLetter) error {
	value, err := json.Marshal(toDeadLetterMessage(letter))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(letter.MessageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(letter.Reason)},
			{Key: "source", Value: []byte(letter.Source)},
			{Key: "attempts", Value: []byte(strconv.Itoa(letter.Attempts))},
		},
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Close подходит для closer.Func.
func (p *DeadLetterProducer) Close(_ context.Context) error {
	if err := p.writer.Close(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func toDeadLetterMessage(letter *usecase.DeadLetter) *deadLetterMessage {
	msg := &deadLetterMessage{
		ID:        letter.ID,
		Source:    letter.Source,
		MessageID: letter.MessageID,
		Reason:    letter.Reason,
		Error:     letter.Error,
		Terminal:  letter.Terminal,
		Attempts:  letter.Attempts,
		FailedAt:  letter.FailedAt,
	}
	if json.Valid(letter.Payload) {
		msg.Payload = letter.Payload
	} else {
		msg.RawBody = string(letter.Payload)
	}

	return msg
}
