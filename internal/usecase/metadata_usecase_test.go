package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memThings — таблица things в памяти с уникальностью по image_path.
type memThings struct {
	mu      sync.Mutex
	rows    map[string]domain.MetadataRecord
	fail    map[string]error
	blockOn string
}

func newMemThings() *memThings {
	return &memThings{rows: map[string]domain.MetadataRecord{}, fail: map[string]error{}}
}

func (m *memThings) Insert(ctx context.Context, record *domain.MetadataRecord) (bool, error) {
	if record.ImagePath == m.blockOn {
		<-ctx.Done()
		return false, e.NewStoreUnavailableError(ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.fail[record.ImagePath]; ok {
		return false, err
	}
	if _, ok := m.rows[record.ImagePath]; ok {
		return false, nil
	}
	m.rows[record.ImagePath] = *record
	return true, nil
}

func (m *memThings) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memThings) Get(path string) (domain.MetadataRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[path]
	return r, ok
}

func kafkaDelivery(id, body string) Delivery {
	return NewDelivery(id, SourceKafka, []byte(body))
}

func TestProcessBatchScenarios(t *testing.T) {
	store := newMemThings()
	uc := NewMetadataUC(store, logger.Nop{}, nil)

	res := uc.ProcessBatch(context.Background(), []Delivery{
		kafkaDelivery("1", `{"thumbName":"img1","isBeer":true,"style":"ipa"}`),
		kafkaDelivery("2", `{"thumbName":"img2","isBeer":false}`),
		kafkaDelivery("3", `{"isBeer":true,"style":"stout"}`),
		kafkaDelivery("4", `{"thumbName":"img1","isBeer":true,"style":"ipa"}`),
	})

	require.Len(t, res.Results, 4)
	assert.Equal(t, OutcomeInserted, res.Results[0].Outcome)
	assert.Equal(t, OutcomeInserted, res.Results[1].Outcome)
	assert.Equal(t, OutcomeTerminal, res.Results[2].Outcome)
	assert.ErrorIs(t, res.Results[2].Err, e.ErrImagePathRequired)
	assert.Equal(t, OutcomeDuplicate, res.Results[3].Outcome)
	assert.NoError(t, res.Results[3].Err)

	assert.Equal(t, 2, store.Len())
	img1, _ := store.Get("img1")
	assert.Equal(t, domain.MetadataRecord{ImagePath: "img1", IsBeer: true, Style: "ipa"}, img1)
	img2, _ := store.Get("img2")
	assert.Equal(t, domain.MetadataRecord{ImagePath: "img2", IsBeer: false, Style: ""}, img2)

	assert.Empty(t, res.Retryable())
	require.Len(t, res.Terminal(), 1)
	assert.Equal(t, "3", res.Terminal()[0].Delivery.ID)
}

func TestProcessBatchIsolatesInvalidMessages(t *testing.T) {
	store := newMemThings()
	uc := NewMetadataUC(store, logger.Nop{}, nil)

	res := uc.ProcessBatch(context.Background(), []Delivery{
		kafkaDelivery("1", `{"thumbName":"a.jpg","isBeer":true,"style":"lager"}`),
		kafkaDelivery("2", `not json`),
		kafkaDelivery("3", `{"thumbName":"b.jpg","isBeer":"yes"}`),
		kafkaDelivery("4", `{"thumbName":"c.jpg","isBeer":false,"style":"ignored"}`),
	})

	assert.Equal(t, 2, res.Count(OutcomeInserted))
	assert.Equal(t, 2, res.Count(OutcomeTerminal))
	assert.True(t, e.IsTerminal(res.Results[1].Err))
	assert.True(t, e.IsTerminal(res.Results[2].Err))

	c, ok := store.Get("c.jpg")
	require.True(t, ok)
	assert.Empty(t, c.Style)
}

func TestProcessBatchIsIdempotentUnderConcurrentDelivery(t *testing.T) {
	const deliveries = 16

	store := newMemThings()
	uc := NewMetadataUC(store, logger.Nop{}, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []MessageResult
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := uc.ProcessBatch(context.Background(), []Delivery{
				kafkaDelivery(fmt.Sprint(i), `{"thumbName":"same.jpg","isBeer":true,"style":"porter"}`),
			})
			mu.Lock()
			results = append(results, res.Results...)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	inserted, duplicates := 0, 0
	for _, r := range results {
		switch r.Outcome {
		case OutcomeInserted:
			inserted++
		case OutcomeDuplicate:
			duplicates++
		}
	}
	assert.Equal(t, 1, inserted)
	assert.Equal(t, deliveries-1, duplicates)
	assert.Equal(t, 1, store.Len())
}

func TestProcessBatchStoreFailuresAreRetryable(t *testing.T) {
	store := newMemThings()
	store.fail["down.jpg"] = e.NewStoreUnavailableError(errors.New("connection reset by peer"))
	store.fail["boot.jpg"] = e.NewBootstrapError(e.ErrSecretNotFound)
	store.fail["odd.jpg"] = errors.New("unexpected")
	uc := NewMetadataUC(store, logger.Nop{}, nil)

	res := uc.ProcessBatch(context.Background(), []Delivery{
		kafkaDelivery("1", `{"thumbName":"down.jpg","isBeer":false}`),
		kafkaDelivery("2", `{"thumbName":"boot.jpg","isBeer":false}`),
		kafkaDelivery("3", `{"thumbName":"odd.jpg","isBeer":false}`),
		kafkaDelivery("4", `{"thumbName":"ok.jpg","isBeer":false}`),
	})

	assert.Len(t, res.Retryable(), 3)
	assert.True(t, e.IsRetryable(res.Results[0].Err))
	assert.ErrorIs(t, res.Results[1].Err, e.ErrSecretNotFound)
	assert.Equal(t, OutcomeInserted, res.Results[3].Outcome)
	assert.NotNil(t, res.Results[0].Record)
}

func TestProcessBatchBudgetExpiryMarksPendingRetryable(t *testing.T) {
	store := newMemThings()
	store.blockOn = "slow.jpg"
	uc := NewMetadataUC(store, logger.Nop{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := uc.ProcessBatch(ctx, []Delivery{
		kafkaDelivery("1", `{"thumbName":"fast.jpg","isBeer":true,"style":"ipa"}`),
		kafkaDelivery("2", `{"thumbName":"slow.jpg","isBeer":true,"style":"ipa"}`),
		kafkaDelivery("3", `{"thumbName":"late.jpg","isBeer":true,"style":"ipa"}`),
		kafkaDelivery("4", `{"broken`),
	})

	require.Len(t, res.Results, 4)
	assert.Equal(t, OutcomeInserted, res.Results[0].Outcome)
	for _, r := range res.Results[1:] {
		assert.Equal(t, OutcomeRetryable, r.Outcome, r.Delivery.ID)
		assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	}
	_, stored := store.Get("late.jpg")
	assert.False(t, stored)
}

func TestProcessBatchEmpty(t *testing.T) {
	uc := NewMetadataUC(newMemThings(), logger.Nop{}, nil)

	res := uc.ProcessBatch(context.Background(), nil)

	assert.Empty(t, res.Results)
}

func TestProcessBatchRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewProm("metadata", reg)
	uc := NewMetadataUC(newMemThings(), logger.Nop{}, m)

	uc.ProcessBatch(context.Background(), []Delivery{
		NewDelivery("a", SourceSQS, []byte(`{"thumbName":"x.jpg","isBeer":false}`)),
		NewDelivery("b", SourceSQS, []byte(`{"thumbName":"x.jpg","isBeer":false}`)),
		NewDelivery("c", SourceSQS, []byte(`{}`)),
	})

	series, err := testutil.GatherAndCount(reg, "metadata_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestNewDeadLetter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := kafkaDelivery("topic/0/42", `{"isBeer":true}`)
	d.Attempt = 3

	terminal := NewDeadLetter(MessageResult{Delivery: d, Outcome: OutcomeTerminal, Err: e.NewValidationError(e.ErrImagePathRequired)}, now)
	assert.NotEmpty(t, terminal.ID)
	assert.Equal(t, "topic/0/42", terminal.MessageID)
	assert.Equal(t, ReasonInvalid, terminal.Reason)
	assert.True(t, terminal.Terminal)
	assert.Equal(t, 3, terminal.Attempts)
	assert.Equal(t, now, terminal.FailedAt)
	assert.Contains(t, terminal.Error, "thumbName is required")

	d.ID = ""
	exhausted := NewDeadLetter(MessageResult{Delivery: d, Outcome: OutcomeRetryable}, now)
	assert.Equal(t, ReasonRetriesExhausted, exhausted.Reason)
	assert.False(t, exhausted.Terminal)
	assert.Equal(t, exhausted.ID, exhausted.MessageID)
	assert.Empty(t, exhausted.Error)
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeInserted.Done())
	assert.True(t, OutcomeDuplicate.Done())
	assert.False(t, OutcomeTerminal.Done())
	assert.False(t, OutcomeRetryable.Done())
	assert.Equal(t, "duplicate", OutcomeDuplicate.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}
