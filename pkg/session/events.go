package session

// Events receives session state-change notifications. Implementations are
// fire-and-forget consumers (UI, global store); the engine does not care
// how they are rendered and never waits on them.
type Events interface {
	// OnWarning fires once per session reset when expiry is near.
	// minutesRemaining is rounded up and never less than 1.
	OnWarning(minutesRemaining int)

	// OnExpired fires when the session expires, naturally or forced.
	// Downstream this triggers logout.
	OnExpired()

	// OnCleared fires when the session is ended deliberately.
	OnCleared()
}

// NoopEvents discards all notifications.
type NoopEvents struct{}

func (NoopEvents) OnWarning(int) {}
func (NoopEvents) OnExpired()    {}
func (NoopEvents) OnCleared()    {}

// Verify interface compliance.
var _ Events = NoopEvents{}
