// Package playback provides the thread-safe playback engine driving an
// output device over a playlist.
package playback

// State represents the playback state.
type State int

const (
	StateStopped State = iota // No track playing, control loop halted
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
