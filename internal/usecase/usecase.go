package usecase

import "context"

type MetadataUC interface {
	ProcessBatch(ctx context.Context, batch []Delivery) *BatchResult
}
