package session

import (
	"context"
	"fmt"
	"time"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/appstate"
	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

// BindNotifier subscribes the manager to host lifecycle transitions. Any
// previous subscription is released first. Cleanup releases the
// subscription on teardown.
func (m *Manager) BindNotifier(n *appstate.Notifier) {
	unsub := n.Subscribe(m.HandleAppState)

	m.mu.Lock()
	prev := m.unsubscribe
	m.unsubscribe = unsub
	m.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// HandleAppState reacts to a host lifecycle transition.
//
// Entering the background records the time and, under LockOnBackground,
// arms a short grace timer that force-expires the session. The grace delay
// exists so a same-tick platform pause/resume glitch does not lock the
// user out; a genuine background stay always expires. Returning to the
// foreground cancels the grace timer and runs the resume check.
func (m *Manager) HandleAppState(state appstate.State) {
	if state.Foreground() {
		m.mu.Lock()
		m.stopGraceLocked()
		m.mu.Unlock()

		if _, err := m.CheckSessionOnResume(context.Background()); err != nil {
			m.log.Warn("session: resume check failed", "error", err)
		}
		return
	}

	m.mu.Lock()
	m.backgroundEnteredAt = m.clk.Now()
	if m.active && m.cfg.LockOnBackground {
		m.armGraceLocked()
	}
	m.mu.Unlock()
	m.log.Debug("session: app backgrounded", "state", string(state))
}

// CheckSessionOnResume decides whether the session is still valid after
// the app returns to the foreground. It consults the persisted activity
// record rather than in-memory state so the decision also holds across a
// process restart. Both staleness checks are independent: the idle timeout
// and the background-presence timeout each invalidate on their own,
// whichever triggers first.
//
// A valid session has its last activity restored from the persisted value
// and its timers rearmed. An invalid one is cleared, its record removed,
// and the expired event emitted. Read errors fail closed: the caller must
// treat the session as invalid.
func (m *Manager) CheckSessionOnResume(ctx context.Context) (bool, error) {
	m.mu.Lock()
	now := m.clk.Now()
	var timeInBackground time.Duration
	if !m.backgroundEnteredAt.IsZero() {
		timeInBackground = now.Sub(m.backgroundEnteredAt)
	}
	m.backgroundEnteredAt = time.Time{}
	cfg := m.cfg
	m.mu.Unlock()

	raw, ok, err := m.store.Get(ctx, storage.KeyLastActivity)
	if err != nil {
		return false, fmt.Errorf("reading persisted activity: %w", err)
	}
	if !ok {
		// No durable record: nothing to resume. In-memory state, if any,
		// is stale and must not outlive its record.
		m.mu.Lock()
		wasActive := m.active
		m.expireLocked()
		m.mu.Unlock()
		if wasActive {
			m.events.OnExpired()
		}
		return false, nil
	}

	persisted, err := parseMillis(raw)
	if err != nil {
		return false, err
	}

	timeSinceActivity := now.Sub(persisted)
	if timeSinceActivity >= durationMinutes(cfg.TimeoutMinutes) {
		m.log.Info("session: expired while away",
			"idle", timeSinceActivity.String())
		m.invalidate(ctx)
		return false, nil
	}

	if cfg.LockOnBackground && timeInBackground > backgroundLockThreshold {
		m.log.Info("session: background lock policy triggered",
			"time_in_background", timeInBackground.String())
		m.invalidate(ctx)
		return false, nil
	}

	m.mu.Lock()
	m.active = true
	m.lastActivity = persisted
	m.warned = false
	m.armTimersLocked(cfg.TimeoutMinutes)
	m.mu.Unlock()
	return true, nil
}

// invalidate clears the session and reports it expired, regardless of
// whether it was active in this process.
func (m *Manager) invalidate(ctx context.Context) {
	m.mu.Lock()
	m.expireLocked()
	m.mu.Unlock()

	m.finishExpiry(ctx)
}

// armGraceLocked arms the background-entry expiry timer. Caller must hold
// the lock.
func (m *Manager) armGraceLocked() {
	m.stopGraceLocked()
	gen := m.graceGeneration
	m.graceTimer = m.clk.AfterFunc(backgroundLockGrace, func() { m.handleGraceTimer(gen) })
}

// stopGraceLocked cancels a pending background-entry expiry. Caller must
// hold the lock.
func (m *Manager) stopGraceLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.graceGeneration++
}

// handleGraceTimer expires the session after the background grace delay.
func (m *Manager) handleGraceTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.graceGeneration || !m.active || !m.cfg.LockOnBackground {
		m.mu.Unlock()
		return
	}
	m.expireLocked()
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.finishExpiry(ctx)
}
