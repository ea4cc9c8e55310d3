package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (l *recordingListener) Send(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return l.err
}

func (l *recordingListener) received() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func TestManager_PublishToSubscribers(t *testing.T) {
	m := NewManager()
	a := &recordingListener{}
	b := &recordingListener{}
	m.Subscribe(a)
	m.Subscribe(b)

	m.Publish(Event{Type: EventTrackStarted, Track: "alpha"})

	for _, l := range []*recordingListener{a, b} {
		events := l.received()
		require.Len(t, events, 1)
		assert.Equal(t, EventTrackStarted, events[0].Type)
		assert.Equal(t, "alpha", events[0].Track)
		assert.Equal(t, uint64(1), events[0].SequenceNo)
		assert.False(t, events[0].At.IsZero())
	}
}

func TestManager_SequenceNumbersIncrease(t *testing.T) {
	m := NewManager()
	l := &recordingListener{}
	m.Subscribe(l)

	m.Publish(Event{Type: EventSessionStarted})
	m.Publish(Event{Type: EventSessionEnded})

	events := l.received()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].SequenceNo)
	assert.Equal(t, uint64(2), events[1].SequenceNo)
}

func TestManager_Unsubscribe(t *testing.T) {
	m := NewManager()
	l := &recordingListener{}
	id := m.Subscribe(l)

	m.Unsubscribe(id)
	m.Publish(Event{Type: EventStateChanged})

	assert.Empty(t, l.received())
}

func TestManager_PublishOnNilManager(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.Publish(Event{Type: EventTrackStarted})
	})
}

func TestManager_FailingListenerDoesNotBlockOthers(t *testing.T) {
	m := NewManager()
	bad := &recordingListener{err: assert.AnError}
	good := &recordingListener{}
	m.Subscribe(bad)
	m.Subscribe(good)

	m.Publish(Event{Type: EventTrackSkipped})

	assert.Len(t, good.received(), 1)
}

type stuckListener struct{}

func (stuckListener) Send(Event) error {
	select {} // never returns
}

func TestManager_StuckListenerTimesOut(t *testing.T) {
	m := NewManager()
	m.Subscribe(stuckListener{})
	good := &recordingListener{}
	m.Subscribe(good)

	start := time.Now()
	m.Publish(Event{Type: EventTrackStarted})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, good.received(), 1)
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	l := &recordingListener{}
	m.Subscribe(l)

	m.Close()
	m.Publish(Event{Type: EventTrackStarted})

	assert.Empty(t, l.received())
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventTrackStarted, "track_started"},
		{EventTrackSkipped, "track_skipped"},
		{EventStateChanged, "state_changed"},
		{EventSessionStarted, "session_started"},
		{EventSessionEnded, "session_ended"},
		{EventType(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.String())
	}
}
