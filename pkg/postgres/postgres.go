package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"

	"github.com/DRSN-tech/image-metadata/internal/cfg"
	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PgDatabase инкапсулирует пул соединений к PostgreSQL и управление миграциями.
type PgDatabase struct {
	Pool *pgxpool.Pool
	Dsn  string
	cfg  *cfg.PGDBCfg
}

func NewPgDatabase(pool *pgxpool.Pool, cfg *cfg.PGDBCfg, dsn string) *PgDatabase {
	return &PgDatabase{Pool: pool, cfg: cfg, Dsn: dsn}
}

// BuildDSN собирает URL подключения из реквизитов секрета.
// Пароль экранируется, поэтому допускаются любые символы.
func BuildDSN(creds *domain.DBCredentials, sslMode string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(creds.User, creds.Password),
		Host:   net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port)),
		Path:   "/" + creds.DBName,
	}
	if sslMode != "" {
		q := url.Values{}
		q.Set("sslmode", sslMode)
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// Connect устанавливает соединение с PostgreSQL по реквизитам из секрета.
func Connect(ctx context.Context, creds *domain.DBCredentials, cfg *cfg.PGDBCfg) (*PgDatabase, error) {
	const op = "PgDatabase.Connect"
	dsn := BuildDSN(creds, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	db := NewPgDatabase(pool, cfg, dsn)
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, e.Wrap(op, err)
	}

	return db, nil
}

func (db *PgDatabase) Ping(ctx context.Context) error {
	const op = "PgDatabase.Ping"

	if db.cfg != nil && db.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.Pool.Ping(ctx); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// Exec выполняет запрос на пуле.
func (db *PgDatabase) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.Pool.Exec(ctx, sql, args...)
}

// Close корректно закрывает пул соединений к базе данных.
func (db *PgDatabase) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations применяет ожидающие миграции из встроенной файловой системы.
// Параллельные процессы сериализуются advisory lock'ом драйвера migrate.
func (db *PgDatabase) RunMigrations(logger logger.Logger, migrations fs.FS, dir string) error {
	const (
		op                 = "PgDatabase.RunMigrations"
		driverName         = "pgx"
		databaseDriverName = "postgres"
		sourceDriverName   = "iofs"
	)

	sqlDb, err := sql.Open(driverName, db.Dsn)
	if err != nil {
		return e.Wrap(op, err)
	}
	defer sqlDb.Close()

	driver, err := postgres.WithInstance(sqlDb, &postgres.Config{})
	if err != nil {
		return e.Wrap(op, err)
	}

	source, err := iofs.New(migrations, dir)
	if err != nil {
		return e.Wrap(op, err)
	}

	m, err := migrate.NewWithInstance(sourceDriverName, source, databaseDriverName, driver)
	if err != nil {
		return e.Wrap(op, err)
	}

	err = m.Up()
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return e.Wrap(op, fmt.Errorf("apply migrations: %w", err))
	}

	logger.Infof("migrations applied successfully")
	return nil
}
