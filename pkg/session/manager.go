// Package session implements the session lifecycle and idle-timeout engine.
// A Manager owns the session state machine: it tracks activity, schedules
// warning and expiry timers, persists the last activity timestamp so the
// session survives process restarts, and evaluates the re-authentication
// strength required when the application returns to the foreground.
//
// All failure semantics lean toward locking: storage errors during an
// in-flight session are swallowed so a transient fault never logs the user
// out, but any error while deciding whether a resumed session is still
// valid resolves to the strictest outcome.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

const (
	// backgroundLockThreshold is the background-presence timeout: with
	// LockOnBackground set, a session resumed after more than this in the
	// background is invalid even if the idle timeout has not elapsed.
	backgroundLockThreshold = 30 * time.Second

	// quickUnlockThreshold separates a sub-second app switch (no
	// re-authentication) from a short absence (biometric).
	quickUnlockThreshold = time.Second

	// backgroundLockGrace delays the background-entry expiry just long
	// enough to ignore a same-tick platform pause/resume glitch.
	backgroundLockGrace = 100 * time.Millisecond

	// persistTimeout bounds best-effort persistence done off the caller's
	// context.
	persistTimeout = 5 * time.Second
)

// SessionInfo is a point-in-time snapshot of the session.
type SessionInfo struct {
	Active        bool
	LastActivity  time.Time
	ExpiresAt     time.Time
	TimeRemaining time.Duration
}

// Options configures a Manager. Zero fields get defaults.
type Options struct {
	// Clock abstracts time so tests can simulate advancement.
	// Defaults to the real clock.
	Clock clock.Clock

	// Events receives state-change notifications. Defaults to NoopEvents.
	Events Events

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Config is the initial timing policy. Defaults to DefaultConfig().
	Config Config
}

// Manager is the session state machine. All mutable state is guarded by a
// single mutex: explicit API calls, timer callbacks, and lifecycle signals
// all serialize through it. Construct one per process at the composition
// root and inject it; there is no package-level instance.
type Manager struct {
	clk    clock.Clock
	store  storage.Store
	events Events
	log    *slog.Logger

	mu                  sync.Mutex
	cfg                 Config
	active              bool
	lastActivity        time.Time
	backgroundEnteredAt time.Time // zero when in the foreground
	deadline            time.Time // armed expiry deadline
	effectiveTimeout    float64   // minutes behind the armed deadline
	warned              bool

	// generation invalidates timer callbacks that fired after their timer
	// was superseded. Every cancel bumps it; callbacks compare their
	// captured value against the current one.
	generation      uint64
	graceGeneration uint64
	warningTimer    *clock.Timer
	expiryTimer     *clock.Timer
	graceTimer      *clock.Timer

	unsubscribe func()
}

// NewManager creates a Manager persisting through store.
func NewManager(store storage.Store, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Events == nil {
		opts.Events = NoopEvents{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	opts.Config.WarningMinutes = WarningMinutes(opts.Config.TimeoutMinutes)

	return &Manager{
		clk:    opts.Clock,
		store:  store,
		events: opts.Events,
		log:    opts.Logger,
		cfg:    opts.Config,
	}
}

// LoadConfig applies a previously persisted configuration, if any. Call it
// once at startup, before Start. An absent record is not an error.
func (m *Manager) LoadConfig(ctx context.Context) error {
	raw, ok, err := m.store.Get(ctx, storage.KeySessionConfig)
	if err != nil {
		return fmt.Errorf("reading persisted config: %w", err)
	}
	if !ok {
		return nil
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return fmt.Errorf("parsing persisted config: %w", err)
	}
	if err := validateTimeout(cfg.TimeoutMinutes); err != nil {
		return err
	}
	cfg.WarningMinutes = WarningMinutes(cfg.TimeoutMinutes)

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return nil
}

// Start begins a session. A non-nil patch is merged into the configuration
// first; the warning offset is always recomputed from the merged timeout.
// Start fails only when the activity record cannot be persisted, and in
// that case the session is not started.
func (m *Manager) Start(ctx context.Context, patch *ConfigPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.cfg.Merge(patchOrEmpty(patch))
	if err != nil {
		return err
	}

	now := m.clk.Now()
	if err := m.store.Set(ctx, storage.KeyLastActivity, formatMillis(now)); err != nil {
		return fmt.Errorf("persisting session start: %w", err)
	}
	if patch != nil {
		m.persistConfig(ctx, cfg)
	}

	m.cfg = cfg
	m.active = true
	m.lastActivity = now
	m.backgroundEnteredAt = time.Time{}
	m.warned = false
	m.armTimersLocked(cfg.TimeoutMinutes)

	m.log.Info("session: started",
		"timeout_minutes", cfg.TimeoutMinutes,
		"warning_minutes", cfg.WarningMinutes)
	return nil
}

// End terminates the session deliberately. It always succeeds from the
// caller's perspective; a failed record removal is logged and swallowed.
func (m *Manager) End(ctx context.Context) {
	m.mu.Lock()
	wasActive := m.active
	m.stopTimersLocked()
	m.stopGraceLocked()
	m.active = false
	m.warned = false
	m.mu.Unlock()

	if err := m.store.Remove(ctx, storage.KeyLastActivity); err != nil {
		m.log.Warn("session: failed to remove activity record", "error", err)
	}
	if wasActive {
		m.log.Info("session: ended")
		m.events.OnCleared()
	}
}

// UpdateActivity records user activity. It is a no-op when no session is
// active. In-memory state advances even when persistence fails; a session
// must not die because of a storage hiccup. When ExtendOnActivity is set
// the timers are rescheduled from now under the configured timeout.
func (m *Manager) UpdateActivity(ctx context.Context) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	now := m.clk.Now()
	m.lastActivity = now
	if m.cfg.ExtendOnActivity {
		m.warned = false
		m.armTimersLocked(m.cfg.TimeoutMinutes)
	}
	m.mu.Unlock()

	if err := m.store.Set(ctx, storage.KeyLastActivity, formatMillis(now)); err != nil {
		m.log.Warn("session: failed to persist activity", "error", err)
	}
}

// Extend resets the session from now. A positive extendMinutes replaces
// the configured timeout for this period; zero means the configured
// timeout. Persistence failures are logged and swallowed.
func (m *Manager) Extend(ctx context.Context, extendMinutes float64) error {
	now, err := m.extendInMemory(extendMinutes)
	if err != nil {
		return err
	}

	if err := m.store.Set(ctx, storage.KeyLastActivity, formatMillis(now)); err != nil {
		m.log.Warn("session: failed to persist extension", "error", err)
	}
	return nil
}

// ExtendImmediate is the UI-thread-safe variant of Extend: the in-memory
// state and timers are updated synchronously before any I/O, and the
// activity record is persisted afterward on a background goroutine.
func (m *Manager) ExtendImmediate(extendMinutes float64) error {
	now, err := m.extendInMemory(extendMinutes)
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := m.store.Set(ctx, storage.KeyLastActivity, formatMillis(now)); err != nil {
			m.log.Warn("session: failed to persist extension", "error", err)
		}
	}()
	return nil
}

// extendInMemory performs the synchronous part of an extension.
func (m *Manager) extendInMemory(extendMinutes float64) (time.Time, error) {
	if extendMinutes < 0 || math.IsNaN(extendMinutes) || math.IsInf(extendMinutes, 0) {
		return time.Time{}, fmt.Errorf("%w: invalid extension %v", ErrInvalidConfig, extendMinutes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return time.Time{}, ErrNoActiveSession
	}

	now := m.clk.Now()
	m.lastActivity = now
	m.warned = false

	timeout := m.cfg.TimeoutMinutes
	if extendMinutes > 0 {
		timeout = extendMinutes
	}
	m.armTimersLocked(timeout)
	return now, nil
}

// UpdateConfig merges a configuration patch, persists the result, and
// reschedules the timers under the new policy when a session is active.
// The merged config is authoritative in memory even if persistence fails.
func (m *Manager) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	m.mu.Lock()
	merged, err := m.cfg.Merge(patch)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = merged
	if m.active {
		m.warned = false
		m.armTimersLocked(merged.TimeoutMinutes)
	}
	m.persistConfig(ctx, merged)
	m.mu.Unlock()
	return nil
}

// Config returns the current timing policy.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Expired reports whether the session is expired. A manager that was never
// started is expired.
func (m *Manager) Expired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return true
	}
	return !m.clk.Now().Before(m.deadline)
}

// Info returns a snapshot of the session. Pure computation, no side
// effects; an inactive session reports zero time remaining.
func (m *Manager) Info() SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := SessionInfo{
		Active:       m.active,
		LastActivity: m.lastActivity,
	}
	if !m.active {
		return info
	}

	info.ExpiresAt = m.deadline
	if remaining := m.deadline.Sub(m.clk.Now()); remaining > 0 {
		info.TimeRemaining = remaining
	}
	return info
}

// ForceExpiry expires the session immediately, with the same effect as the
// expiry timer firing. Used for out-of-band locking (e.g. a manual lock
// button). No-op when no session is active.
func (m *Manager) ForceExpiry(ctx context.Context) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.expireLocked()
	m.mu.Unlock()

	m.finishExpiry(ctx)
}

// Cleanup cancels all timers and releases the lifecycle subscription.
// Safe to call repeatedly; it does not end the session or touch storage.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	m.stopTimersLocked()
	m.stopGraceLocked()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// armTimersLocked arms the warning and expiry timers for a deadline of
// timeoutMinutes past lastActivity. Existing timers are always cancelled
// first, never left stacked. Caller must hold the lock.
func (m *Manager) armTimersLocked(timeoutMinutes float64) {
	m.stopTimersLocked()
	gen := m.generation

	m.effectiveTimeout = timeoutMinutes
	m.deadline = m.lastActivity.Add(durationMinutes(timeoutMinutes))

	now := m.clk.Now()
	expireIn := m.deadline.Sub(now)
	if expireIn < 0 {
		expireIn = 0
	}
	m.expiryTimer = m.clk.AfterFunc(expireIn, func() { m.handleExpiryTimer(gen) })

	if !m.warned {
		warnIn := m.deadline.Add(-durationMinutes(WarningMinutes(timeoutMinutes))).Sub(now)
		if warnIn < 0 {
			warnIn = 0
		}
		m.warningTimer = m.clk.AfterFunc(warnIn, func() { m.handleWarningTimer(gen) })
	}
}

// stopTimersLocked cancels both session timers and invalidates any
// callbacks already in flight. Caller must hold the lock.
func (m *Manager) stopTimersLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}
	m.generation++
}

// handleWarningTimer fires the warning event once per session reset.
func (m *Manager) handleWarningTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.active || m.warned {
		m.mu.Unlock()
		return
	}
	m.warned = true
	remaining := m.deadline.Sub(m.clk.Now())
	m.mu.Unlock()

	mins := int(math.Ceil(remaining.Minutes()))
	if mins < 1 {
		mins = 1
	}
	m.log.Info("session: expiry warning", "minutes_remaining", mins)
	m.events.OnWarning(mins)
}

// handleExpiryTimer expires the session when the idle timeout elapses.
func (m *Manager) handleExpiryTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.active {
		m.mu.Unlock()
		return
	}
	m.expireLocked()
	m.mu.Unlock()

	m.finishExpiry(context.Background())
}

// expireLocked clears the in-memory session. Caller must hold the lock and
// follow up with finishExpiry outside it.
func (m *Manager) expireLocked() {
	m.stopTimersLocked()
	m.stopGraceLocked()
	m.active = false
	m.warned = false
}

// finishExpiry removes the persisted record and emits the expired event.
// Called without the lock held.
func (m *Manager) finishExpiry(ctx context.Context) {
	if err := m.store.Remove(ctx, storage.KeyLastActivity); err != nil {
		m.log.Warn("session: failed to remove activity record", "error", err)
	}
	m.log.Info("session: expired")
	m.events.OnExpired()
}

// persistConfig writes the config best-effort; failures are logged because
// the in-memory configuration stays authoritative either way.
func (m *Manager) persistConfig(ctx context.Context, cfg Config) {
	data, err := json.Marshal(cfg)
	if err != nil {
		m.log.Warn("session: failed to encode config", "error", err)
		return
	}
	if err := m.store.Set(ctx, storage.KeySessionConfig, string(data)); err != nil {
		m.log.Warn("session: failed to persist config", "error", err)
	}
}

func patchOrEmpty(p *ConfigPatch) ConfigPatch {
	if p == nil {
		return ConfigPatch{}
	}
	return *p
}

func durationMinutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid activity timestamp %q: %w", s, err)
	}
	return time.UnixMilli(ms), nil
}
