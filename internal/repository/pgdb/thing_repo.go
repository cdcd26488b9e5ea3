package pgdb

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/jimlawless/whereami"
)

// ConnProvider выдаёт общее соединение и принимает сообщения о его поломке.
type ConnProvider interface {
	Acquire(ctx context.Context) (connection.Conn, error)
	Invalidate(conn connection.Conn) bool
}

// ThingRepo реализует хранилище метаданных изображений поверх PostgreSQL.
type ThingRepo struct {
	conns ConnProvider
	conv  converter.ThingConverter
}

func NewThingRepo(conns ConnProvider, conv converter.ThingConverter) *ThingRepo {
	return &ThingRepo{
		conns: conns,
		conv:  conv,
	}
}

// Insert идемпотентно вставляет запись по image_path.
// Если запись уже есть, возвращает inserted == false без ошибки.
func (t *ThingRepo) Insert(ctx context.Context, record *domain.MetadataRecord) (bool, error) {
	conn, err := t.conns.Acquire(ctx)
	if err != nil {
		return false, e.Wrap(whereami.WhereAmI(), err)
	}

	model := t.conv.ToModel(record)
	query := `
		INSERT INTO things (image_path, is_beer, style)
		VALUES ($1, $2, $3)
		ON CONFLICT (image_path) DO NOTHING;
	`

	tag, err := conn.Exec(ctx, query, model.ImagePath, model.IsBeer, model.Style)
	if err != nil {
		switch {
		case postgresDuplicate(err):
			// Гонка с параллельной вставкой без ON CONFLICT на стороне другого писателя
			return false, nil
		case postgresDataError(err):
			return false, e.NewValidationError(fmt.Errorf("%s: %w", whereami.WhereAmI(), err))
		case ctx.Err() == nil && brokenConnection(err):
			// Таймаут по бюджету сообщения ломает только запрос, не пул
			t.conns.Invalidate(conn)
		}

		return false, e.NewStoreUnavailableError(fmt.Errorf("%s: failed to insert %s: %w", whereami.WhereAmI(), record.ImagePath, err))
	}

	return tag.RowsAffected() > 0, nil
}
