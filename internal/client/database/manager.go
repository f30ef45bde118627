// Package database owns the single open account database of the process.
//
// A Manager follows the session: it opens the database of the authorized
// account, keeps it open while the session is locked in the foreground,
// and closes it when the app is backgrounded while locked, when the user
// signs out, or when the manager is unloaded. Statements are executed
// through the Manager, which routes them to the open connection or fails
// with ErrConnectionClosed.
package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/filex"
	"github.com/dmitrijs2005/keeper/internal/logging"
)

// ErrConnectionClosed is returned by Execute and LoadRows when no database
// is open. If the last open attempt failed, the error also wraps its
// *OpenError.
var ErrConnectionClosed = errors.New("database connection closed")

// OpenError means the database of an account could not be opened even
// after deleting it and retrying. The local data of that account is
// inaccessible.
type OpenError struct {
	AccountID models.AccountID
	Err       error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot access local data of account %s: %v", e.AccountID, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Locator resolves where the database of an account lives and the key it
// is encrypted with. accounts.Store implements it.
type Locator interface {
	DatabaseLocation(ctx context.Context, id models.AccountID) (path string, key []byte, err error)
}

// Lifecycle is the foreground/background state of the application.
type Lifecycle int

const (
	LifecycleForeground Lifecycle = iota
	LifecycleBackground
)

func (l Lifecycle) String() string {
	if l == LifecycleBackground {
		return "background"
	}
	return "foreground"
}

// Event is either a new session state or a lifecycle change. Both kinds
// travel on one channel so they are handled in the order they happened.
type Event struct {
	session   models.SessionState
	lifecycle Lifecycle
	isSession bool
	seq       uint64
}

// SessionEvent wraps a session state.
func SessionEvent(s models.SessionState) Event {
	return Event{session: s, isSession: true}
}

// LifecycleEvent wraps a lifecycle change.
func LifecycleEvent(l Lifecycle) Event {
	return Event{lifecycle: l}
}

// At stamps e with the publisher's sequence number. Sequence numbers must
// grow; Await and Sync wait for them. Zero means unstamped.
func (e Event) At(seq uint64) Event {
	e.seq = seq
	return e
}

// Seq returns the sequence number e was stamped with.
func (e Event) Seq() uint64 { return e.seq }

// Manager is the connection state machine. Its zero value is not usable;
// call NewManager.
type Manager struct {
	locator    Locator
	engine     storage.Engine
	fs         filex.FS
	migrations fs.FS
	log        logging.Logger

	mu      sync.RWMutex
	conn    storage.Connection
	current models.AccountID
	lastErr *OpenError
	handled uint64
	changed chan struct{}

	// owned by the event loop
	session    models.SessionState
	background bool

	life    sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager returns a closed manager. migrations are applied on every open.
func NewManager(locator Locator, engine storage.Engine, fsys filex.FS, migrations fs.FS, log logging.Logger) *Manager {
	return &Manager{
		locator:    locator,
		engine:     engine,
		fs:         fsys,
		migrations: migrations,
		log:        log.With("component", "database"),
		changed:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start processes events until the channel is closed, ctx is done or
// Unload is called. Only the first call has an effect, and none after
// Unload.
func (m *Manager) Start(ctx context.Context, events <-chan Event) {
	m.life.Lock()
	defer m.life.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx, events)
}

func (m *Manager) run(ctx context.Context, events <-chan Event) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.closeConnection(context.WithoutCancel(ctx), "stopped")
			return
		case ev, ok := <-events:
			if !ok {
				m.closeConnection(ctx, "session stream ended")
				return
			}
			m.apply(ctx, ev)
			m.markHandled(ev.seq)
		}
	}
}

func (m *Manager) markHandled(seq uint64) {
	m.mu.Lock()
	if seq > m.handled {
		m.handled = seq
	}
	m.notifyLocked()
	m.mu.Unlock()
}

// Unload closes the connection and stops the event loop for good. It
// always reports true.
func (m *Manager) Unload() bool {
	m.life.Lock()
	if m.stopped {
		m.life.Unlock()
		return true
	}
	m.stopped = true
	started, cancel := m.started, m.cancel
	if !started {
		close(m.done)
	}
	m.life.Unlock()

	if started {
		cancel()
		<-m.done
	}
	m.closeConnection(context.Background(), "unloaded")
	return true
}

func (m *Manager) apply(ctx context.Context, ev Event) {
	if !ev.isSession {
		m.background = ev.lifecycle == LifecycleBackground
		m.log.Debug(ctx, "lifecycle changed", "state", ev.lifecycle)
		if m.background && m.session.Status == models.SessionAuthorizationRequired {
			m.closeConnection(ctx, "locked session entered background")
		}
		return
	}

	m.session = ev.session
	id := ev.session.Account.ID

	switch ev.session.Status {
	case models.SessionAuthorized:
		open, current := m.State()
		switch {
		case open && current == id:
			return
		case open:
			m.log.Error(ctx, "invariant violation: authorized account changed while its database was open",
				"open_account_id", current, "account_id", id)
			m.closeConnection(ctx, "account switched")
		}
		m.open(ctx, id)

	case models.SessionAuthorizationRequired:
		open, current := m.State()
		switch {
		case !open:
		case current != id:
			m.closeConnection(ctx, "locked for another account")
		case m.background:
			m.closeConnection(ctx, "locked in background")
		}

	default:
		m.closeConnection(ctx, "signed out")
		m.setLastErr(nil)
	}
}

// open opens the database of id. A failed open deletes the file and tries
// once more; a second failure leaves the manager closed.
func (m *Manager) open(ctx context.Context, id models.AccountID) {
	m.setLastErr(nil)

	path, key, err := m.locator.DatabaseLocation(ctx, id)
	if err != nil {
		m.log.Error(ctx, "failed to locate database", "account_id", id, "error", err)
		m.setLastErr(&OpenError{AccountID: id, Err: err})
		return
	}

	conn, err := m.engine.Open(ctx, path, key, m.migrations)
	if err != nil {
		if ctx.Err() != nil {
			m.setLastErr(&OpenError{AccountID: id, Err: err})
			return
		}
		m.log.Warn(ctx, "failed to open database, recreating", "account_id", id, "error", err)
		for _, f := range storage.DatabaseFiles(path) {
			if derr := m.fs.DeleteFile(f); derr != nil {
				m.log.Error(ctx, "failed to delete database file", "path", f, "error", derr)
			}
		}
		conn, err = m.engine.Open(ctx, path, key, m.migrations)
	}
	if err != nil {
		m.log.Error(ctx, "cannot access local data", "account_id", id, "error", err)
		m.setLastErr(&OpenError{AccountID: id, Err: err})
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.current = id
	m.notifyLocked()
	m.mu.Unlock()
	m.log.Info(ctx, "database opened", "account_id", id)
}

// closeConnection closes the open connection, if any. The write lock
// waits for running statements, so none can reach a closed connection.
func (m *Manager) closeConnection(ctx context.Context, reason string) {
	m.mu.Lock()
	conn, id := m.conn, m.current
	if conn == nil {
		m.mu.Unlock()
		return
	}
	err := conn.Close()
	m.conn = nil
	m.current = ""
	m.notifyLocked()
	m.mu.Unlock()

	if err != nil {
		m.log.Warn(ctx, "failed to close database", "account_id", id, "error", err)
	}
	m.log.Info(ctx, "database closed", "account_id", id, "reason", reason)
}

func (m *Manager) setLastErr(err *OpenError) {
	m.mu.Lock()
	m.lastErr = err
	m.notifyLocked()
	m.mu.Unlock()
}

// notifyLocked wakes Await callers. mu must be held for writing.
func (m *Manager) notifyLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Manager) closedErrLocked() error {
	if m.lastErr != nil {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, m.lastErr)
	}
	return ErrConnectionClosed
}

// Execute runs statement on the open connection.
func (m *Manager) Execute(ctx context.Context, statement string, args ...any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return m.closedErrLocked()
	}
	return m.conn.Execute(ctx, statement, args...)
}

// LoadRows runs query on the open connection.
func (m *Manager) LoadRows(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, m.closedErrLocked()
	}
	return m.conn.LoadRows(ctx, query, args...)
}

// State reports whether a database is open and for which account.
func (m *Manager) State() (bool, models.AccountID) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil, m.current
}

// Err returns the failure of the last open attempt, or nil.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastErr == nil {
		return nil
	}
	return m.lastErr
}

// Await blocks until the event stamped seq has been handled, then reports
// whether the database of id is open. It returns nil when it is, the
// *OpenError of the attempt when opening failed, and ErrConnectionClosed
// otherwise. Results of attempts made before seq are never reported.
func (m *Manager) Await(ctx context.Context, id models.AccountID, seq uint64) error {
	if err := m.Sync(ctx, seq); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.conn != nil && m.current == id:
		return nil
	case m.lastErr != nil && m.lastErr.AccountID == id:
		return m.lastErr
	}
	return m.closedErrLocked()
}

// Sync blocks until every event up to the one stamped seq has been handled.
// It fails with ErrConnectionClosed when the loop stops first.
func (m *Manager) Sync(ctx context.Context, seq uint64) error {
	for {
		m.mu.RLock()
		handled, changed := m.handled, m.changed
		m.mu.RUnlock()
		if handled >= seq {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.handled >= seq {
				return nil
			}
			return ErrConnectionClosed
		case <-changed:
		}
	}
}
