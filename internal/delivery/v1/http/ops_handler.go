package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/usecase"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
)

const maxDeadLetterLimit = 1000

// StateSource сообщает состояние соединения с хранилищем.
type StateSource interface {
	State() connection.State
}

// DeadLetterLister читает последние записи DLQ.
type DeadLetterLister interface {
	List(ctx context.Context, limit int64) ([]usecase.DeadLetter, error)
}

type OpsHandler struct {
	state  StateSource
	dlq    DeadLetterLister // nil, если DLQ не в Redis
	logger logger.Logger
}

func NewOpsHandler(state StateSource, dlq DeadLetterLister, logger logger.Logger) *OpsHandler {
	return &OpsHandler{state: state, dlq: dlq, logger: logger}
}

type statusResponse struct {
	Status     string `json:"status"`
	Connection string `json:"connection"`
}

// healthz — процесс жив.
func (o *OpsHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, statusResponse{Status: "ok", Connection: o.state.State().String()})
}

// readyz — 503, пока последний bootstrap соединения завершился ошибкой.
// Uninitialized считается готовностью: соединение поднимается лениво.
func (o *OpsHandler) readyz(w http.ResponseWriter, _ *http.Request) {
	state := o.state.State()
	if state == connection.Failed {
		WriteSuccess(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Connection: state.String()})
		return
	}

	WriteSuccess(w, http.StatusOK, statusResponse{Status: "ok", Connection: state.String()})
}

// deadLetters отдаёт последние записи DLQ, новые первыми. ?limit=N, по умолчанию 100.
func (o *OpsHandler) deadLetters(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxDeadLetterLimit {
			err = fmt.Errorf("%w: limit must be in 1..%d", e.ErrStatusBadRequest, maxDeadLetterLimit)
			o.logger.Warnf("%d %v", http.StatusBadRequest, err)
			WriteError(w, err)
			return
		}
		limit = n
	}

	letters, err := o.dlq.List(r.Context(), limit)
	if err != nil {
		o.logger.Errorf(err, "Failed to list dead letters")
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"items": letters,
		"count": len(letters),
	})
}
