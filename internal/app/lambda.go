package app

import (
	"context"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/delivery/lambda"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	"github.com/jimlawless/whereami"
)

// NewLambdaHandler собирает обработчик на холодном старте. Менеджер соединения живёт
// столько же, сколько окружение выполнения, и переиспользуется тёплыми вызовами.
func NewLambdaHandler(config *cfg.Config, log logger.Logger) (*lambda.Handler, error) {
	ctx := context.Background()

	uc, _, err := initMetadataUC(ctx, config, log, metrics.Noop{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	dlq, err := initDeadLetters(ctx, config, log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return lambda.NewHandler(uc, dlq.sink, log), nil
}
