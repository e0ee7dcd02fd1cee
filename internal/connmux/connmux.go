// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package connmux multiplexes PostgreSQL connections across two registries:
// bounded pools handing out short-lived leases for stateless work, and
// long-lived session connections held exclusively per (connection key,
// session id) so that repeated script executions reuse session-local state
// such as temporary tables and open transactions.
//
// Both registries are keyed by profile id plus target database. Pools are
// built lazily on first acquire; sessions are established eagerly on first
// request and reused until explicitly closed or found dead. The registry is
// owned by the application context and drained with CloseAll on shutdown.
package connmux

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	errs "pgrun/cli/internal/errors"
	"pgrun/cli/internal/logging"
	"pgrun/cli/internal/profile"
)

// Pool sizing applied to every pooled registry entry. Idle connections above
// the idle timeout are closed by the pool's background reaper.
const (
	poolMaxConns    = 10
	poolIdleTimeout = 30 * time.Second
)

// logDebug reports connection-layer degradations (skipped TLS material, dead
// session replacement) at verbose level, masked.
func logDebug(format string, args ...interface{}) {
	logging.Debugf(format, args...)
}

// SecretSource resolves a profile's credential reference to a password.
// Implemented by internal/secure over the OS keychain.
type SecretSource interface {
	Password(credentialRef string) (string, error)
}

// SessionConn is the surface of a live session connection used by executors.
// *pgx.Conn satisfies it via the pgxSessionConn wrapper; tests substitute
// fakes.
type SessionConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close(ctx context.Context) error
	IsClosed() bool
	BackendPID() uint32
}

// pooledPool is the slice of *pgxpool.Pool the multiplexer depends on.
type pooledPool interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

// poolFactory builds the pooled backend for one connection key.
type poolFactory func(ctx context.Context, cfg *pgxpool.Config) (pooledPool, error)

// sessionFactory dials one session connection, routing server notices into
// the provided callback.
type sessionFactory func(ctx context.Context, cfg *pgx.ConnConfig, onNotice func(string)) (SessionConn, error)

func defaultPoolFactory(ctx context.Context, cfg *pgxpool.Config) (pooledPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

func defaultSessionFactory(ctx context.Context, cfg *pgx.ConnConfig, onNotice func(string)) (SessionConn, error) {
	cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		if onNotice != nil && n != nil {
			onNotice(n.Message)
		}
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgxSessionConn{conn}, nil
}

// pgxSessionConn adapts *pgx.Conn to SessionConn.
type pgxSessionConn struct {
	*pgx.Conn
}

func (c *pgxSessionConn) BackendPID() uint32 {
	if pg := c.PgConn(); pg != nil {
		return pg.PID()
	}
	return 0
}

// sessionKey namespaces session leases: connection key plus caller session id.
type sessionKey struct {
	key profile.Key
	id  string
}

// Multiplexer owns the pool and session registries. Construct with New and
// drain with CloseAll on shutdown.
type Multiplexer struct {
	mu       sync.Mutex
	pools    map[profile.Key]pooledPool
	sessions map[sessionKey]*Session

	secrets    SecretSource
	newPool    poolFactory
	newSession sessionFactory
}

// New creates an empty multiplexer resolving passwords through secrets.
func New(secrets SecretSource) *Multiplexer {
	return &Multiplexer{
		pools:      make(map[profile.Key]pooledPool),
		sessions:   make(map[sessionKey]*Session),
		secrets:    secrets,
		newPool:    defaultPoolFactory,
		newSession: defaultSessionFactory,
	}
}

// PooledLease is a borrowed connection from a pool. It must be released
// exactly once; Release is idempotent so deferred cleanup on error paths is
// safe.
type PooledLease struct {
	conn *pgxpool.Conn
	once sync.Once
}

// Conn returns the underlying pooled connection.
func (l *PooledLease) Conn() *pgxpool.Conn { return l.conn }

// Exec runs a statement on the leased connection.
func (l *PooledLease) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return l.conn.Exec(ctx, sql, args...)
}

// Query runs a query on the leased connection.
func (l *PooledLease) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return l.conn.Query(ctx, sql, args...)
}

// Release returns the connection to its pool. Safe to call more than once.
func (l *PooledLease) Release() {
	l.once.Do(func() {
		if l.conn != nil {
			l.conn.Release()
		}
	})
}

// AcquirePooled borrows a connection from the pool for the profile and target
// database, creating the pool lazily on first use. Pool-level errors (such as
// an idle connection dropped by the server) do not tear the pool down; they
// surface on the acquire attempt.
func (m *Multiplexer) AcquirePooled(ctx context.Context, prof *profile.Profile, database string) (*PooledLease, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	pool, err := m.poolForKey(ctx, prof, database)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionFailed, "acquire pooled connection", err)
	}
	return &PooledLease{conn: conn}, nil
}

// poolForKey returns the pool for the profile/database pair, building it on
// first use.
func (m *Multiplexer) poolForKey(ctx context.Context, prof *profile.Profile, database string) (pooledPool, error) {
	key := prof.Key(database)

	m.mu.Lock()
	if pool, ok := m.pools[key]; ok {
		m.mu.Unlock()
		return pool, nil
	}
	m.mu.Unlock()

	// Build the config outside the registry lock: it resolves credentials
	// and may read TLS material from disk.
	cfg, err := m.poolConfig(prof, database)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another caller may have won the race while we were building.
	if pool, ok := m.pools[key]; ok {
		return pool, nil
	}
	pool, err := m.newPool(ctx, cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionFailed, "create connection pool", err)
	}
	m.pools[key] = pool
	return pool, nil
}

// AcquireSession returns the exclusive session lease for (profile key,
// sessionID), establishing the connection eagerly on first request and
// reusing it afterwards. Concurrent requests for the same pair serialize on
// the session gate; a dead connection found at acquire time is replaced with
// a fresh one.
func (m *Multiplexer) AcquireSession(ctx context.Context, prof *profile.Profile, database, sessionID string) (*SessionLease, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	sk := sessionKey{key: prof.Key(database), id: sessionID}

	// Exclusive use: one script at a time per (key, session id). If the
	// session was evicted while we waited on its gate, start over against
	// the registry so we never revive an unregistered session.
	var s *Session
	for {
		m.mu.Lock()
		reg, ok := m.sessions[sk]
		if !ok {
			reg = &Session{key: sk}
			m.sessions[sk] = reg
		}
		m.mu.Unlock()

		reg.gate.Lock()

		m.mu.Lock()
		still := m.sessions[sk] == reg
		m.mu.Unlock()
		if still {
			s = reg
			break
		}
		reg.gate.Unlock()
	}

	if s.conn == nil || s.conn.IsClosed() {
		if s.conn != nil {
			logDebug("session %v: replacing dead connection", sk)
			_ = s.conn.Close(ctx)
			s.conn = nil
		}
		cfg, err := m.sessionConfig(prof, database)
		if err != nil {
			s.gate.Unlock()
			m.evict(s)
			return nil, err
		}
		conn, err := m.newSession(ctx, cfg, s.notices.deliver)
		if err != nil {
			s.gate.Unlock()
			m.evict(s)
			return nil, errs.Wrap(errs.ConnectionFailed, "establish session connection", err)
		}
		s.conn = conn
	}

	return &SessionLease{mux: m, session: s}, nil
}

// evict removes a session from the registry if it is still the registered one.
func (m *Multiplexer) evict(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.key]; ok && cur == s {
		delete(m.sessions, s.key)
	}
}

// CloseSession tears down the session connection for (profile key, sessionID)
// and evicts it from the registry. Unknown sessions are a no-op.
func (m *Multiplexer) CloseSession(ctx context.Context, prof *profile.Profile, database, sessionID string) error {
	sk := sessionKey{key: prof.Key(database), id: sessionID}

	m.mu.Lock()
	s, ok := m.sessions[sk]
	if ok {
		delete(m.sessions, sk)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.shutdown(ctx)
}

// CloseAllForKey tears down the pool and every session bound to one
// connection key.
func (m *Multiplexer) CloseAllForKey(ctx context.Context, key profile.Key) error {
	m.mu.Lock()
	pool, hadPool := m.pools[key]
	if hadPool {
		delete(m.pools, key)
	}
	var victims []*Session
	for sk, s := range m.sessions {
		if sk.key == key {
			victims = append(victims, s)
			delete(m.sessions, sk)
		}
	}
	m.mu.Unlock()

	var result *multierror.Error
	if hadPool {
		pool.Close()
	}
	for _, s := range victims {
		if err := s.shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// CloseAllForProfileID tears down every pool and session whose key was
// derived from the given profile id, across all databases. Used when a
// profile is deleted or edited.
func (m *Multiplexer) CloseAllForProfileID(ctx context.Context, profileID string) error {
	m.mu.Lock()
	var pools []pooledPool
	for key, pool := range m.pools {
		if key.BelongsTo(profileID) {
			pools = append(pools, pool)
			delete(m.pools, key)
		}
	}
	var victims []*Session
	for sk, s := range m.sessions {
		if sk.key.BelongsTo(profileID) {
			victims = append(victims, s)
			delete(m.sessions, sk)
		}
	}
	m.mu.Unlock()

	var result *multierror.Error
	for _, pool := range pools {
		pool.Close()
	}
	for _, s := range victims {
		if err := s.shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// CloseAll drains both registries. Called once at shutdown.
func (m *Multiplexer) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	pools := m.pools
	sessions := m.sessions
	m.pools = make(map[profile.Key]pooledPool)
	m.sessions = make(map[sessionKey]*Session)
	m.mu.Unlock()

	var result *multierror.Error
	for _, pool := range pools {
		pool.Close()
	}
	for _, s := range sessions {
		if err := s.shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
