package session

import (
	"context"
	"time"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

// RequirementType is the strength of re-authentication required on resume.
type RequirementType string

const (
	// RequirementNone lets the user straight back in.
	RequirementNone RequirementType = "none"

	// RequirementBiometric requires a biometric prompt.
	RequirementBiometric RequirementType = "biometric"

	// RequirementFullLogin requires the master password.
	RequirementFullLogin RequirementType = "full_login"
)

// Reason explains a requirement decision.
type Reason string

const (
	ReasonQuickSwitch          Reason = "quick_switch"
	ReasonQuickUnlock          Reason = "quick_unlock"
	ReasonBackgroundLockPolicy Reason = "background_lock_policy"
	ReasonSessionExpired       Reason = "session_expired"
	ReasonNoActiveSession      Reason = "no_active_session"
	ReasonErrorCheckingSession Reason = "error_checking_session"
)

// Requirement is the policy evaluator's output. It is a value, never
// stored.
type Requirement struct {
	Type   RequirementType
	Reason Reason
}

// AuthRequirement decides the re-authentication strength required on
// resume. It reads the persisted activity record and the recorded
// background-entry time, checking the strictest condition first. Any
// failure to read the state collapses to a full login; an error must never
// resolve to a weaker requirement.
//
// The evaluation is read-only: it does not clear state or move timestamps,
// so it stays consistent with, but independent of, CheckSessionOnResume.
func (m *Manager) AuthRequirement(ctx context.Context) Requirement {
	m.mu.Lock()
	now := m.clk.Now()
	var timeInBackground time.Duration
	if !m.backgroundEnteredAt.IsZero() {
		timeInBackground = now.Sub(m.backgroundEnteredAt)
	}
	cfg := m.cfg
	m.mu.Unlock()

	raw, ok, err := m.store.Get(ctx, storage.KeyLastActivity)
	if err != nil {
		m.log.Warn("session: requirement check failed, requiring full login", "error", err)
		return Requirement{Type: RequirementFullLogin, Reason: ReasonErrorCheckingSession}
	}
	if !ok {
		return Requirement{Type: RequirementFullLogin, Reason: ReasonNoActiveSession}
	}

	persisted, err := parseMillis(raw)
	if err != nil {
		m.log.Warn("session: corrupt activity record, requiring full login", "error", err)
		return Requirement{Type: RequirementFullLogin, Reason: ReasonErrorCheckingSession}
	}

	if now.Sub(persisted) >= durationMinutes(cfg.TimeoutMinutes) {
		return Requirement{Type: RequirementFullLogin, Reason: ReasonSessionExpired}
	}
	if cfg.LockOnBackground && timeInBackground > backgroundLockThreshold {
		return Requirement{Type: RequirementBiometric, Reason: ReasonBackgroundLockPolicy}
	}
	if timeInBackground > quickUnlockThreshold {
		return Requirement{Type: RequirementBiometric, Reason: ReasonQuickUnlock}
	}
	return Requirement{Type: RequirementNone, Reason: ReasonQuickSwitch}
}
