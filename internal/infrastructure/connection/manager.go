// Package connection управляет единственным на процесс соединением с хранилищем метаданных.
//
// Соединение поднимается лениво при первом Acquire: секрет -> реквизиты -> пул -> миграции.
// Одновременно выполняется не больше одного bootstrap; все конкурентные вызовы Acquire
// получают его результат. Неудачный bootstrap не кэшируется: следующий Acquire повторяет его.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/DRSN-tech/image-metadata/internal/domain"
	"github.com/DRSN-tech/image-metadata/pkg/e"
	"github.com/DRSN-tech/image-metadata/pkg/logger"
	"github.com/DRSN-tech/image-metadata/pkg/metrics"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/singleflight"
)

// State — состояние соединения.
type State int32

const (
	Uninitialized State = iota
	Bootstrapping
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapping:
		return "bootstrapping"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn — готовый к работе дескриптор хранилища.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// SecretStore возвращает значение секрета по идентификатору.
type SecretStore interface {
	GetSecretString(ctx context.Context, secretID string) (string, error)
}

// Connector устанавливает соединение по реквизитам.
type Connector interface {
	Connect(ctx context.Context, creds *domain.DBCredentials) (Conn, error)
}

// ConnectorFunc позволяет использовать функцию как Connector.
type ConnectorFunc func(ctx context.Context, creds *domain.DBCredentials) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context, creds *domain.DBCredentials) (Conn, error) {
	return f(ctx, creds)
}

// StateHook вызывается после каждой смены состояния.
type StateHook func(State)

const bootstrapKey = "bootstrap"

// Manager владеет соединением на всё время жизни процесса.
type Manager struct {
	secretID         string
	secrets          SecretStore
	connector        Connector
	bootstrapTimeout time.Duration
	logger           logger.Logger
	metrics          metrics.Metrics

	group singleflight.Group

	mu      sync.Mutex
	state   State
	conn    Conn
	lastErr error
	closed  bool
	hooks   []StateHook // задаются только в NewManager
}

type Option func(*Manager)

func WithMetrics(m metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

func WithStateHook(h StateHook) Option {
	return func(mgr *Manager) { mgr.hooks = append(mgr.hooks, h) }
}

func WithBootstrapTimeout(d time.Duration) Option {
	return func(mgr *Manager) { mgr.bootstrapTimeout = d }
}

func NewManager(secretID string, secrets SecretStore, connector Connector, logger logger.Logger, opts ...Option) *Manager {
	const defaultBootstrapTimeout = 20 * time.Second

	m := &Manager{
		secretID:         secretID,
		secrets:          secrets,
		connector:        connector,
		bootstrapTimeout: defaultBootstrapTimeout,
		logger:           logger,
		metrics:          metrics.Noop{},
		state:            Uninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Acquire возвращает готовое соединение, при необходимости запуская bootstrap.
// Если ctx истекает раньше, чем bootstrap завершился, возвращается повторяемая
// *e.BootstrapError; сам bootstrap продолжается для остальных ожидающих.
func (m *Manager) Acquire(ctx context.Context) (Conn, error) {
	const op = "Manager.Acquire"

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, e.NewBootstrapError(e.Wrap(op, e.ErrConnectionClosed))
	}
	if m.state == Ready {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan(bootstrapKey, func() (any, error) {
		return m.bootstrap()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Conn), nil
	case <-ctx.Done():
		return nil, e.NewBootstrapError(e.Wrap(op, ctx.Err()))
	}
}

// bootstrap выполняется строго в одном экземпляре через singleflight.
func (m *Manager) bootstrap() (Conn, error) {
	const op = "Manager.bootstrap"

	m.mu.Lock()
	// Пока очередной вызов ждал входа в singleflight, предыдущий bootstrap мог уже завершиться.
	if m.state == Ready {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	if m.closed {
		m.mu.Unlock()
		return nil, e.NewBootstrapError(e.Wrap(op, e.ErrConnectionClosed))
	}
	m.setStateLocked(Bootstrapping)
	m.mu.Unlock()
	notify(m.hooks, Bootstrapping)

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.bootstrapTimeout)
	defer cancel()

	conn, err := m.establish(ctx)

	m.mu.Lock()
	if err == nil && m.closed {
		conn.Close()
		conn, err = nil, e.Wrap(op, e.ErrConnectionClosed)
	}

	var state State
	if err != nil {
		err = e.NewBootstrapError(err)
		m.conn = nil
		m.lastErr = err
		state = Failed
	} else {
		m.conn = conn
		m.lastErr = nil
		state = Ready
	}
	m.setStateLocked(state)
	m.mu.Unlock()
	notify(m.hooks, state)

	elapsed := time.Since(started)
	if err != nil {
		m.metrics.ObserveBootstrap("error", elapsed)
		m.logger.Errorf(err, "store bootstrap failed after %s", elapsed)
		return nil, err
	}

	m.metrics.ObserveBootstrap("ok", elapsed)
	m.logger.Infof("store connection ready in %s", elapsed)
	return conn, nil
}

// establish: секрет -> реквизиты -> соединение.
func (m *Manager) establish(ctx context.Context) (Conn, error) {
	const op = "Manager.establish"

	raw, err := m.secrets.GetSecretString(ctx, m.secretID)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	creds, err := domain.ParseDBCredentials(raw)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	m.logger.Debugf("connecting to metadata store %s", creds)
	conn, err := m.connector.Connect(ctx, creds)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return conn, nil
}

// Invalidate сбрасывает соединение, которое вызывающий счёл сломанным.
// Устаревший дескриптор (уже заменённый новым bootstrap) игнорируется.
// Возвращает true, если соединение действительно сброшено.
func (m *Manager) Invalidate(conn Conn) bool {
	m.mu.Lock()
	if m.state != Ready || m.conn == nil || m.conn != conn {
		m.mu.Unlock()
		return false
	}
	old := m.conn
	m.conn = nil
	m.setStateLocked(Uninitialized)
	m.mu.Unlock()
	notify(m.hooks, Uninitialized)

	m.logger.Warnf("store connection invalidated, next acquire will bootstrap again")
	// Close пула ждёт возврата занятых соединений, поэтому не блокируем вызывающего.
	go old.Close()
	return true
}

// State возвращает текущее состояние соединения.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError возвращает ошибку последнего неудачного bootstrap.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Close закрывает соединение; последующие Acquire завершаются ошибкой.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.setStateLocked(Uninitialized)
	m.mu.Unlock()
	notify(m.hooks, Uninitialized)

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.SetConnectionState(s.String())
}

func notify(hooks []StateHook, s State) {
	for _, h := range hooks {
		h(s)
	}
}
