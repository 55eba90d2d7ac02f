package entity

import "fmt"

// SessionID is an opaque identifier for one connected subscriber. The
// transport owns the session lifecycle; the engine only references it.
type SessionID string

// Transport is the boundary the engine delivers through. Implementations must
// not block indefinitely in SendToSession.
type Transport interface {
	SendToSession(session SessionID, envelope PriceUpdateEnvelope) error
}

// DeliveryFailure reports a failed send to one session. It triggers registry
// cleanup for that session and is never propagated to the scheduler.
type DeliveryFailure struct {
	Session SessionID
	Reason  string
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("delivery to session %s failed: %s", e.Session, e.Reason)
}
