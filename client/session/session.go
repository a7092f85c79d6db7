// Package session tracks the installation identity and the session boundaries that are
// reported with every request.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/prefs"
)

const (
	flagOff = "0"
	flagOn  = "1"
)

// Manager owns the force-new-session ("fns") and app-first-start ("one") flags.
type Manager struct {
	mu       sync.Mutex
	store    prefs.Store
	identity *IdentityStore
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Manager)

// WithTimeout sets the inactivity gap after which ResumeSession starts a new session.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.identity.now = now
	}
}

func NewManager(store prefs.Store, identity *IdentityStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		identity: identity,
		timeout:  30 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SetEverId(ctx context.Context) error {
	return m.identity.EnsureEverId(ctx)
}

func (m *Manager) EverId(ctx context.Context) (string, error) {
	return m.identity.EverId(ctx)
}

// StartNewSession marks the next outgoing event as the first one of a new session. It returns
// true if this is the very first start of the installation.
func (m *Manager) StartNewSession(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, data.PrefForceNewSess, flagOn); err != nil {
		return false, fmt.Errorf("failed to start new session: %w", err)
	}
	if err := m.touch(ctx); err != nil {
		return false, err
	}
	one, err := m.store.Get(ctx, data.PrefAppFirstOpen, flagOff)
	if err != nil {
		return false, fmt.Errorf("failed to read first start flag: %w", err)
	}
	if one != flagOff {
		return false, nil
	}
	if err := m.store.Set(ctx, data.PrefAppFirstOpen, flagOn); err != nil {
		return false, fmt.Errorf("failed to set first start flag: %w", err)
	}
	return true, nil
}

// ResumeSession is called when the host comes back to the foreground. If the last tracked
// activity is older than the session timeout, the next event will start a new session.
func (m *Manager) ResumeSession(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, err := m.store.Get(ctx, data.PrefLastActivity, "")
	if err != nil {
		return false, fmt.Errorf("failed to read last activity: %w", err)
	}
	expired := true
	if last != "" {
		millis, err := strconv.ParseInt(last, 10, 64)
		if err == nil {
			expired = m.now().Sub(time.UnixMilli(millis)) > m.timeout
		}
	}
	if !expired {
		return false, nil
	}
	if err := m.store.Set(ctx, data.PrefForceNewSess, flagOn); err != nil {
		return false, fmt.Errorf("failed to start new session: %w", err)
	}
	return true, m.touch(ctx)
}

// CurrentSession returns the force-new-session flag and clears it, so exactly one event per
// session boundary is sent with fns=1.
func (m *Manager) CurrentSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fns, err := m.store.Get(ctx, data.PrefForceNewSess, flagOff)
	if err != nil {
		return "", fmt.Errorf("failed to read session flag: %w", err)
	}
	if fns != flagOff {
		if err := m.store.Set(ctx, data.PrefForceNewSess, flagOff); err != nil {
			return "", fmt.Errorf("failed to clear session flag: %w", err)
		}
	}
	if err := m.touch(ctx); err != nil {
		return "", err
	}
	return fns, nil
}

// AppFirstStart returns the durable first start flag without modifying it.
func (m *Manager) AppFirstStart(ctx context.Context) (string, error) {
	one, err := m.store.Get(ctx, data.PrefAppFirstOpen, flagOff)
	if err != nil {
		return "", fmt.Errorf("failed to read first start flag: %w", err)
	}
	return one, nil
}

// touch must be called with m.mu held.
func (m *Manager) touch(ctx context.Context) error {
	err := m.store.Set(ctx, data.PrefLastActivity, strconv.FormatInt(m.now().UnixMilli(), 10))
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
