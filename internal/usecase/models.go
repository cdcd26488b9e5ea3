package usecase

import (
	"time"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/google/uuid"
)

// Источники доставки
const (
	SourceKafka = "kafka"
	SourceSNS   = "sns"
	SourceSQS   = "sqs"
)

// Delivery — одно сообщение из канала доставки.
type Delivery struct {
	ID      string // идентификатор в канале (offset, MessageId); пустой — сгенерируется
	Source  string
	Body    []byte
	Attempt int // номер попытки, начиная с 1
}

// Outcome — итог обработки одного сообщения.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeDuplicate
	OutcomeTerminal
	OutcomeRetryable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Done сообщает, что сообщение обработано и повторная доставка не нужна.
func (o Outcome) Done() bool {
	return o == OutcomeInserted || o == OutcomeDuplicate
}

// MessageResult — результат обработки сообщения.
type MessageResult struct {
	Delivery Delivery
	Outcome  Outcome
	Record   *domain.MetadataRecord
	Err      error
}

// BatchResult — результаты по каждому сообщению в порядке доставки.
type BatchResult struct {
	Results []MessageResult
}

func (b *BatchResult) filter(o Outcome) []MessageResult {
	var out []MessageResult
	for _, r := range b.Results {
		if r.Outcome == o {
			out = append(out, r)
		}
	}
	return out
}

// Retryable возвращает сообщения, которые нужно доставить повторно.
func (b *BatchResult) Retryable() []MessageResult {
	return b.filter(OutcomeRetryable)
}

// Terminal возвращает сообщения, которые нельзя обработать никогда.
func (b *BatchResult) Terminal() []MessageResult {
	return b.filter(OutcomeTerminal)
}

// Count возвращает число сообщений с данным итогом.
func (b *BatchResult) Count(o Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Причины отправки в DLQ
const (
	ReasonInvalid          = "invalid"
	ReasonRetriesExhausted = "retries_exhausted"
)

// DeadLetter — сообщение, отправленное в dead-letter хранилище.
type DeadLetter struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	MessageID string    `json:"messageId"`
	Payload   []byte    `json:"payload"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	Terminal  bool      `json:"terminal"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failedAt"`
}

// MAPPERS

func NewDelivery(id, source string, body []byte) Delivery {
	return Delivery{
		ID:      id,
		Source:  source,
		Body:    body,
		Attempt: 1,
	}
}

// NewDeadLetter строит запись DLQ по результату обработки.
func NewDeadLetter(res MessageResult, failedAt time.Time) *DeadLetter {
	letter := &DeadLetter{
		ID:        uuid.NewString(),
		Source:    res.Delivery.Source,
		MessageID: res.Delivery.ID,
		Payload:   res.Delivery.Body,
		Terminal:  res.Outcome == OutcomeTerminal,
		Attempts:  res.Delivery.Attempt,
		FailedAt:  failedAt.UTC(),
	}
	if letter.MessageID == "" {
		letter.MessageID = letter.ID
	}
	if letter.Terminal {
		letter.Reason = ReasonInvalid
	} else {
		letter.Reason = ReasonRetriesExhausted
	}
	if res.Err != nil {
		letter.Error = res.Err.Error()
	}

	return letter
}
