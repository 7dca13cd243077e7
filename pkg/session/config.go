package session

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned by session operations.
var (
	// ErrInvalidConfig indicates a rejected configuration merge, e.g. a
	// non-positive timeout. Invalid values are never clamped or silently
	// accepted.
	ErrInvalidConfig = errors.New("invalid session configuration")

	// ErrNoActiveSession indicates an operation that requires an active
	// session was called without one.
	ErrNoActiveSession = errors.New("no active session")
)

// Warning offsets for short timeouts, expressed in minutes.
const (
	shortTimeoutWarning  = 10.0 / 60.0 // 10s for timeouts of a minute or less
	mediumTimeoutWarning = 0.5         // 30s for timeouts up to two minutes
	warningFraction      = 0.3
	maxWarningMinutes    = 2.0
)

// Config holds the session timing policy. WarningMinutes is derived from
// TimeoutMinutes (see WarningMinutes); it is persisted for visibility but
// never freely set.
type Config struct {
	// TimeoutMinutes is the idle timeout. Must be positive.
	TimeoutMinutes float64 `json:"timeout_minutes"`

	// WarningMinutes is how long before expiry the warning fires.
	// Always <= TimeoutMinutes.
	WarningMinutes float64 `json:"warning_minutes"`

	// ExtendOnActivity reschedules the timers on every activity update.
	ExtendOnActivity bool `json:"extend_on_activity"`

	// LockOnBackground expires the session when the app stays in the
	// background beyond the lock threshold.
	LockOnBackground bool `json:"lock_on_background"`
}

// DefaultConfig returns the timing policy used when nothing is persisted.
func DefaultConfig() Config {
	const timeout = 5
	return Config{
		TimeoutMinutes:   timeout,
		WarningMinutes:   WarningMinutes(timeout),
		ExtendOnActivity: true,
		LockOnBackground: true,
	}
}

// ConfigPatch is a partial configuration update. Nil fields keep the
// current value. WarningMinutes has no patch field because it is always
// recomputed from the merged timeout.
type ConfigPatch struct {
	TimeoutMinutes   *float64 `json:"timeout_minutes,omitempty"`
	ExtendOnActivity *bool    `json:"extend_on_activity,omitempty"`
	LockOnBackground *bool    `json:"lock_on_background,omitempty"`
}

// Merge applies the patch to c, validates the result, and recomputes the
// warning offset. The receiver is not modified.
func (c Config) Merge(p ConfigPatch) (Config, error) {
	merged := c
	if p.TimeoutMinutes != nil {
		merged.TimeoutMinutes = *p.TimeoutMinutes
	}
	if p.ExtendOnActivity != nil {
		merged.ExtendOnActivity = *p.ExtendOnActivity
	}
	if p.LockOnBackground != nil {
		merged.LockOnBackground = *p.LockOnBackground
	}

	if err := validateTimeout(merged.TimeoutMinutes); err != nil {
		return Config{}, err
	}
	merged.WarningMinutes = WarningMinutes(merged.TimeoutMinutes)
	return merged, nil
}

// WarningMinutes computes the warning offset for a timeout. Short timeouts
// get proportionally short warnings so the warning is not issued the moment
// the session starts.
func WarningMinutes(timeoutMinutes float64) float64 {
	switch {
	case timeoutMinutes <= 1:
		return shortTimeoutWarning
	case timeoutMinutes <= 2:
		return mediumTimeoutWarning
	default:
		return math.Min(warningFraction*timeoutMinutes, maxWarningMinutes)
	}
}

func validateTimeout(timeoutMinutes float64) error {
	if math.IsNaN(timeoutMinutes) || math.IsInf(timeoutMinutes, 0) {
		return fmt.Errorf("%w: timeout is not a finite number", ErrInvalidConfig)
	}
	if timeoutMinutes <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, timeoutMinutes)
	}
	return nil
}
