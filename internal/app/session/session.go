// Package session provides the session arbiter: the single-flight gate
// between the trigger sources and the command router.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is the ephemeral record of one trigger being handled. At most one
// session exists at any instant; that is the arbiter's core invariant.
type Session struct {
	ID        string
	Source    TriggerKind
	StartedAt time.Time
}

// newSession creates a session for a freshly admitted trigger.
func newSession(source TriggerKind) *Session {
	return &Session{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now(),
	}
}
