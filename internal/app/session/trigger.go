package session

import (
	"context"
	"time"
)

// TriggerKind identifies which detector produced a trigger event.
type TriggerKind int

const (
	TriggerWakeWord TriggerKind = iota
	TriggerGesture
)

// String returns the string representation of the trigger kind.
func (k TriggerKind) String() string {
	switch k {
	case TriggerWakeWord:
		return "wake_word"
	case TriggerGesture:
		return "gesture"
	default:
		return "unknown"
	}
}

// TriggerEvent signals that the user wants to issue a command.
type TriggerEvent struct {
	Source TriggerKind
	At     time.Time
}

// TriggerSource is a detector (wake-word engine, proximity sensor) exposing
// a blocking wait for its next trigger. Each source runs on its own
// goroutine; detection internals stay behind this interface.
type TriggerSource interface {
	WaitForTrigger(ctx context.Context) (TriggerEvent, error)
}
