package e

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		terminal  bool
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "validation", err: NewValidationError(ErrImagePathRequired), terminal: true},
		{name: "wrapped validation", err: Wrap("op", NewValidationError(ErrMalformedPayload)), terminal: true},
		{name: "bootstrap", err: NewBootstrapError(errors.New("secrets down")), retryable: true},
		{name: "store", err: Wrap("op", NewStoreUnavailableError(errors.New("conn reset"))), retryable: true},
		{name: "deadline", err: Wrap("op", context.DeadlineExceeded), retryable: true},
		{name: "canceled", err: context.Canceled, retryable: true},
		{name: "unknown", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestErrorsUnwrapToCause(t *testing.T) {
	cause := errors.New("dial tcp: i/o timeout")

	err := Wrap("Manager.Acquire", NewBootstrapError(cause))

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bootstrap")
	assert.ErrorIs(t, NewValidationError(ErrFieldTooLong), ErrFieldTooLong)
}
