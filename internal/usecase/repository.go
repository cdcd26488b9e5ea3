package usecase

import (
	"context"

	"github.com/DRSN-tech/image-metadata/internal/domain"
)

// ThingRepository идемпотентно сохраняет метаданные изображения.
// inserted == false означает, что запись с таким imagePath уже существует.
type ThingRepository interface {
	Insert(ctx context.Context, record *domain.MetadataRecord) (inserted bool, err error)
}

// DeadLetterRepository — хранилище сообщений, которые воркер не смог обработать.
type DeadLetterRepository interface {
	DeadLetterSink
	List(ctx context.Context, limit int64) ([]DeadLetter, error)
}
