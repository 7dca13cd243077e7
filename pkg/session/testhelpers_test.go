package session

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

// recordingEvents captures event sink notifications for assertions.
type recordingEvents struct {
	mu       sync.Mutex
	warnings []int
	expired  int
	cleared  int
}

func (e *recordingEvents) OnWarning(minutes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, minutes)
}

func (e *recordingEvents) OnExpired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expired++
}

func (e *recordingEvents) OnCleared() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
}

func (e *recordingEvents) warningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.warnings)
}

func (e *recordingEvents) lastWarning() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.warnings) == 0 {
		return 0
	}
	return e.warnings[len(e.warnings)-1]
}

func (e *recordingEvents) expiredCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expired
}

func (e *recordingEvents) clearedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

// failingStore fails selected operations while delegating the rest to an
// in-memory store.
type failingStore struct {
	inner     *storage.MemoryStore
	getErr    error
	setErr    error
	removeErr error
}

func newFailingStore() *failingStore {
	return &failingStore{inner: storage.NewMemoryStore()}
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.inner.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.inner.Set(ctx, key, value)
}

func (s *failingStore) Remove(ctx context.Context, key string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	return s.inner.Remove(ctx, key)
}

var _ storage.Store = (*failingStore)(nil)

// testManager bundles a manager with its mock clock and collaborators.
type testManager struct {
	*Manager
	clk    *clock.Mock
	store  *storage.MemoryStore
	events *recordingEvents
}

func newTestManager(t *testing.T, cfg Config) *testManager {
	t.Helper()

	clk := clock.NewMock()
	store := storage.NewMemoryStore()
	events := &recordingEvents{}

	m := NewManager(store, Options{
		Clock:  clk,
		Events: events,
		Logger: slog.New(slog.DiscardHandler),
		Config: cfg,
	})
	t.Cleanup(m.Cleanup)

	return &testManager{Manager: m, clk: clk, store: store, events: events}
}
