package connection

import (
	"context"

	"github.com/DRSN-tech/image-metadata/db"
	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/postgres"
)

// PostgresConnector поднимает пул pgx и применяет миграции схемы things.
type PostgresConnector struct {
	cfg    *cfg.PGDBCfg
	logger logger.Logger
}

func NewPostgresConnector(cfg *cfg.PGDBCfg, logger logger.Logger) *PostgresConnector {
	return &PostgresConnector{cfg: cfg, logger: logger}
}

func (p *PostgresConnector) Connect(ctx context.Context, creds *domain.DBCredentials) (Conn, error) {
	const op = "PostgresConnector.Connect"

	database, err := postgres.Connect(ctx, creds, p.cfg)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if p.cfg.RunMigrations {
		if err := database.RunMigrations(p.logger, db.Migrations, db.MigrationsDir); err != nil {
			database.Close()
			return nil, e.Wrap(op, err)
		}
	}

	return database, nil
}
