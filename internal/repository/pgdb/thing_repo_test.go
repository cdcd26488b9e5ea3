package pgdb

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/internal/infrastructure/connection"
	"github.com/DRSN-tech/image-metadata/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type stubConn struct {
	tag   string
	err   error
	calls []execCall
}

func (s *stubConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, execCall{sql: sql, args: args})
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	return pgconn.NewCommandTag(s.tag), nil
}

func (s *stubConn) Ping(context.Context) error { return nil }

func (s *stubConn) Close() {}

type stubProvider struct {
	conn        connection.Conn
	err         error
	invalidated []connection.Conn
}

func (p *stubProvider) Acquire(context.Context) (connection.Conn, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.conn, nil
}

func (p *stubProvider) Invalidate(conn connection.Conn) bool {
	p.invalidated = append(p.invalidated, conn)
	return true
}

func newRepo(conn *stubConn) (*ThingRepo, *stubProvider) {
	provider := &stubProvider{conn: conn}
	return NewThingRepo(provider, converter.NewThingConverter()), provider
}

func TestThingRepoInsert(t *testing.T) {
	conn := &stubConn{tag: "INSERT 0 1"}
	repo, _ := newRepo(conn)

	inserted, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", true, "ipa"))

	require.NoError(t, err)
	assert.True(t, inserted)
	require.Len(t, conn.calls, 1)
	assert.Contains(t, conn.calls[0].sql, "ON CONFLICT (image_path) DO NOTHING")
	assert.Equal(t, []any{"img1", true, "ipa"}, conn.calls[0].args)
}

func TestThingRepoInsertDuplicate(t *testing.T) {
	repo, _ := newRepo(&stubConn{tag: "INSERT 0 0"})

	inserted, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", true, "ipa"))

	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestThingRepoInsertUniqueViolationIsDuplicate(t *testing.T) {
	repo, _ := newRepo(&stubConn{err: &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}})

	inserted, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", false, ""))

	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestThingRepoInsertDataErrorIsTerminal(t *testing.T) {
	repo, provider := newRepo(&stubConn{err: &pgconn.PgError{Code: "22001", Message: "value too long for type character varying(50)"}})

	_, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", true, "x"))

	assert.True(t, e.IsTerminal(err))
	assert.Empty(t, provider.invalidated)
}

func TestThingRepoInsertBrokenConnectionInvalidates(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}},
		{name: "eof", err: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &stubConn{err: tt.err}
			repo, provider := newRepo(conn)

			_, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", false, ""))

			var storeErr *e.StoreUnavailableError
			require.ErrorAs(t, err, &storeErr)
			assert.True(t, e.IsRetryable(err))
			assert.Equal(t, []connection.Conn{conn}, provider.invalidated)
		})
	}
}

func TestThingRepoInsertBudgetTimeoutKeepsConnection(t *testing.T) {
	repo, provider := newRepo(&stubConn{err: io.ErrUnexpectedEOF})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Insert(ctx, domain.NewMetadataRecord("img1", false, ""))

	assert.True(t, e.IsRetryable(err))
	assert.Empty(t, provider.invalidated)
}

func TestThingRepoInsertOtherErrorKeepsConnection(t *testing.T) {
	repo, provider := newRepo(&stubConn{err: &pgconn.PgError{Code: "40001", Message: "serialization failure"}})

	_, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", false, ""))

	assert.True(t, e.IsRetryable(err))
	assert.Empty(t, provider.invalidated)
}

func TestThingRepoInsertAcquireFailure(t *testing.T) {
	provider := &stubProvider{err: e.NewBootstrapError(errors.New("secret fetch timed out"))}
	repo := NewThingRepo(provider, converter.NewThingConverter())

	_, err := repo.Insert(context.Background(), domain.NewMetadataRecord("img1", false, ""))

	var bootstrapErr *e.BootstrapError
	require.ErrorAs(t, err, &bootstrapErr)
	assert.True(t, e.IsRetryable(err))
}
