package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

type HealingSession struct {
	ID           string        `json:"sessionId"`
	UserID       string        `json:"-"`
	Feature      Feature       `json:"feature"`
	Status       SessionStatus `json:"status"`
	RemovalCount int           `json:"removalCount"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  *time.Time    `json:"completedAt,omitempty"`
	Charged      bool          `json:"-"`
}

// Stale reports whether an active session started before cutoff.
func (s HealingSession) Stale(cutoff time.Time) bool {
	return s.Status == SessionActive && s.StartedAt.Before(cutoff)
}
