// Package session keeps track of who is signed in and makes sure every signed-in
// user has a profile row.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
)

// State is the lifecycle position of a Manager.
type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return "unknown"
}

// Manager observes the auth provider and exposes the current user.
// It is safe for concurrent use.
type Manager struct {
	auth     backend.AuthProvider
	profiles backend.ProfileTable
	log      *zap.Logger

	mu      sync.Mutex
	state   State
	user    *model.User
	gen     uint64 // bumped by every notification
	closed  bool
	out     bool // signing out, SIGNED_OUT not seen yet
	sub     backend.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	stop    context.CancelFunc // aborts the initial GetUser
	ready   chan struct{}
	settled bool

	startOnce sync.Once
	closeOnce sync.Once
	profileMu sync.Mutex
	wg        sync.WaitGroup
}

// New returns a Manager in the Uninitialized state. log may be nil.
func New(auth backend.AuthProvider, profiles backend.ProfileTable, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		auth:     auth,
		profiles: profiles,
		log:      log,
		ready:    make(chan struct{}),
	}
}

// Start subscribes to auth-state changes and resolves the initial user in the background.
// Calls after the first are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.ctx, m.cancel = context.WithCancel(ctx)
		lookup, stop := context.WithCancel(m.ctx)
		m.stop = stop
		m.state = Loading
		gen := m.gen
		m.mu.Unlock()

		sub := m.auth.OnAuthStateChange(m.handle)

		m.mu.Lock()
		if m.closed {
			// Close raced with subscribe
			m.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		m.sub = sub
		m.mu.Unlock()

		if !m.enter() {
			return
		}
		go func() {
			defer m.wg.Done()
			m.initialize(lookup, gen)
		}()
	})
}

// Close releases the subscription exactly once. Notifications already queued
// by the provider are handled first, then a pending initial lookup is cancelled
// and Close waits for every handler, including a profile bootstrap in flight.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		sub := m.sub
		m.sub = nil
		m.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}

		m.mu.Lock()
		m.closed = true
		stop, cancel := m.stop, m.cancel
		m.mu.Unlock()

		if stop != nil {
			stop()
		}
		m.wg.Wait()
		if cancel != nil {
			cancel()
		}
	})
}

// enter registers an in-flight handler unless the manager is closed.
func (m *Manager) enter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

func (m *Manager) handle(ev model.AuthEvent, s *model.Session) {
	if !m.enter() {
		return
	}
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("auth state handler panic", zap.Any("reason", r))
		}
	}()
	m.onAuthStateChange(m.ctx, ev, s)
}

// initialize resolves the current user unless a notification newer than gen got there first.
func (m *Manager) initialize(ctx context.Context, gen uint64) {
	u, err := m.auth.GetUser(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// closed before the lookup finished
			return
		}
		m.log.Warn("resolve current user", zap.Error(err))
		u = nil
	}

	m.mu.Lock()
	if m.gen != gen {
		// a notification settled the state while we were waiting
		m.mu.Unlock()
		return
	}
	m.settleLocked(u)
	m.mu.Unlock()

	if u != nil {
		m.ensureProfile(m.ctx, *u)
	}
}

func (m *Manager) onAuthStateChange(ctx context.Context, ev model.AuthEvent, s *model.Session) {
	var u *model.User
	if s != nil && s.User != nil {
		cp := *s.User
		u = &cp
	}

	m.mu.Lock()
	if ev == model.EventSignedOut {
		m.out = false
	} else if m.out && u != nil {
		// queued before our own sign-out
		m.mu.Unlock()
		m.log.Debug("stale auth state ignored", zap.String("event", string(ev)))
		return
	}
	m.gen++
	m.state = Loading
	m.settleLocked(u)
	m.mu.Unlock()

	m.log.Debug("auth state changed", zap.String("event", string(ev)), zap.Bool("user", u != nil))

	if u != nil {
		m.ensureProfile(ctx, *u)
	}
}

func (m *Manager) settleLocked(u *model.User) {
	m.user = u
	if u != nil {
		m.state = Authenticated
	} else {
		m.state = Anonymous
	}
	if !m.settled {
		m.settled = true
		close(m.ready)
	}
}

// ensureProfile creates the user's profile row when it does not exist yet.
// Failures are logged and never returned.
func (m *Manager) ensureProfile(ctx context.Context, u model.User) {
	m.profileMu.Lock()
	defer m.profileMu.Unlock()

	_, err := m.profiles.Get(ctx, u.ID)
	switch {
	case err == nil:
		return
	case errors.Is(err, errs.ErrNotFound):
	default:
		m.log.Warn("profile lookup", zap.Stringer("user", u.ID), zap.Error(err))
		return
	}

	p := model.Profile{ID: u.ID, Username: model.DefaultUsername(u.Email)}
	if err := m.profiles.Insert(ctx, p); err != nil {
		m.log.Warn("profile insert", zap.Stringer("user", u.ID), zap.Error(err))
		return
	}
	m.log.Info("profile created", zap.Stringer("user", u.ID), zap.String("username", p.Username))
}

// Ready blocks until the initial user is known and returns it (nil when anonymous).
func (m *Manager) Ready(ctx context.Context) (*model.User, error) {
	select {
	case <-m.ready:
		return m.User(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	cp := *m.user
	return &cp
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Loading reports whether the current user is still being resolved.
func (m *Manager) Loading() bool {
	s := m.State()
	return s == Uninitialized || s == Loading
}

// SignIn passes through to the auth provider.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	m.clearOut()
	return m.auth.SignInWithPassword(ctx, email, password)
}

// SignUp passes through to the auth provider.
func (m *Manager) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	m.clearOut()
	return m.auth.SignUp(ctx, email, password)
}

func (m *Manager) clearOut() {
	m.mu.Lock()
	m.out = false
	m.mu.Unlock()
}

// SignOut passes through to the auth provider. On success the manager is
// anonymous when SignOut returns, without waiting for the SIGNED_OUT notification.
func (m *Manager) SignOut(ctx context.Context) error {
	// set first: a provider may notify before SignOut returns
	m.mu.Lock()
	m.out = true
	m.mu.Unlock()

	if err := m.auth.SignOut(ctx); err != nil {
		m.clearOut()
		return err
	}
	m.mu.Lock()
	m.gen++
	m.settleLocked(nil)
	m.mu.Unlock()
	return nil
}
