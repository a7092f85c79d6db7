package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/webtrekk/webtrekk-go/client/data"
	"github.com/webtrekk/webtrekk-go/client/prefs"
)

// IdentityStore owns the ever id of this installation.
type IdentityStore struct {
	mu    sync.Mutex
	store prefs.Store
	now   func() time.Time
}

func NewIdentityStore(store prefs.Store) *IdentityStore {
	return &IdentityStore{store: store, now: time.Now}
}

// EverId returns the persisted ever id, generating and persisting one first if there is none.
// The generated id is written with SetIfAbsent so that a second process sharing the same store
// can never end up with a different id.
func (s *IdentityStore) EverId(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	everId, err := s.store.Get(ctx, data.PrefEverId, "")
	if err != nil {
		return "", fmt.Errorf("failed to read ever id: %w", err)
	}
	if everId != "" {
		return everId, nil
	}
	everId, err = s.store.SetIfAbsent(ctx, data.PrefEverId, data.GenerateEverId(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to persist ever id: %w", err)
	}
	return everId, nil
}

// EnsureEverId creates the ever id if it doesn't exist yet. Calling it again is a no-op.
func (s *IdentityStore) EnsureEverId(ctx context.Context) error {
	_, err := s.EverId(ctx)
	return err
}
