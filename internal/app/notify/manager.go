// Package notify provides the event manager for broadcasting playback and
// session events to observers (status displays, LED animations).
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// EventType represents a broadcast event type.
type EventType int

const (
	EventTrackStarted EventType = iota // A track began playing
	EventTrackSkipped                  // A track was skipped (manually or after failed starts)
	EventStateChanged                  // Playback state changed (pause/resume/stop)
	EventSessionStarted                // A command session was admitted
	EventSessionEnded                  // A command session finished
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventSessionStarted:
		return "session_started"
	case EventSessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}

// Event represents a broadcast event.
type Event struct {
	Type       EventType
	Track      string // Display name of the track involved (may be empty)
	Detail     string // Free-form detail (state name, session ID, ...)
	SequenceNo uint64
	At         time.Time
}

// Listener receives broadcast events. Send must not block indefinitely;
// slow listeners are cut off by the broadcast timeout.
type Listener interface {
	Send(Event) error
}

// subscription pairs a listener with its ID.
type subscription struct {
	id       string
	listener Listener
}

// Manager manages event subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
}

// NewManager creates a new event manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a listener and returns its subscription ID.
func (m *Manager) Subscribe(l Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, listener: l}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, id)
}

// Publish sends an event to all subscribers. Safe to call on a nil manager
// so components can treat event publication as optional. Each send runs in
// its own goroutine with a timeout so a stuck listener cannot stall playback.
func (m *Manager) Publish(e Event) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.sequenceNo++
	e.SequenceNo = m.sequenceNo
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()

			done := make(chan error, 1)
			go func() {
				done <- s.listener.Send(e)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Warn().Msgf("event listener failed: id=%s type=%s err=%v", s.id, e.Type, err)
				}
			case <-time.After(500 * time.Millisecond):
				zlog.Warn().Msgf("event listener timed out: id=%s type=%s", s.id, e.Type)
			}
		}(sub)
	}
	wg.Wait()
}

// Close drops all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
