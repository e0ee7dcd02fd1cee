// Copyright (c) 2025 Pgrun
// Licensed under the MIT License. See LICENSE file in the project root for details.

package connmux

import (
	"context"
	"sync"
)

// Session is one long-lived connection held exclusively per (connection key,
// session id). The gate mutex serializes script executions on it; the notice
// router forwards server notices to whichever subscriber is active.
type Session struct {
	key     sessionKey
	gate    sync.Mutex
	conn    SessionConn
	notices noticeRouter
}

// shutdown closes the underlying connection, waiting for any in-flight lease
// to be released first.
func (s *Session) shutdown(ctx context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	return err
}

// SessionLease is exclusive access to one session connection for the duration
// of a script execution. Release must be called exactly once on all exit
// paths; it is idempotent. A lease found dead on release is evicted from the
// registry so the next acquire re-establishes a fresh connection.
type SessionLease struct {
	mux     *Multiplexer
	session *Session
	once    sync.Once
}

// Conn returns the session connection. Valid until Release.
func (l *SessionLease) Conn() SessionConn { return l.session.conn }

// BackendPID returns the server backend process id for this session, or 0
// when it could not be determined. Best-effort: a zero value only disables
// out-of-band cancellation.
func (l *SessionLease) BackendPID() uint32 {
	if l.session.conn == nil {
		return 0
	}
	return l.session.conn.BackendPID()
}

// OnNotice subscribes fn to server notices emitted on this session. The
// returned release function must be called on every exit path; it detaches
// the subscription.
func (l *SessionLease) OnNotice(fn func(message string)) (release func()) {
	return l.session.notices.subscribe(fn)
}

// Release ends exclusive use of the session. The connection stays registered
// for reuse unless it died during this lease, in which case it is evicted so
// a future acquire starts clean.
func (l *SessionLease) Release() {
	l.once.Do(func() {
		if l.session.conn != nil && l.session.conn.IsClosed() {
			l.session.conn = nil
			l.mux.evict(l.session)
		}
		l.session.gate.Unlock()
	})
}

// noticeRouter fans server notices to the active subscriber. Connections are
// dialed with a handler bound to the router before any subscriber exists, so
// delivery tolerates a nil target.
type noticeRouter struct {
	mu sync.Mutex
	fn func(string)
}

func (r *noticeRouter) deliver(message string) {
	r.mu.Lock()
	fn := r.fn
	r.mu.Unlock()
	if fn != nil {
		fn(message)
	}
}

func (r *noticeRouter) subscribe(fn func(string)) func() {
	r.mu.Lock()
	r.fn = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.fn = nil
		r.mu.Unlock()
	}
}
