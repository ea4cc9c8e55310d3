package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3ro-dev/FAM/internal/domain/playlist"
	"github.com/a3ro-dev/FAM/internal/domain/track"
)

// fakeDevice implements Device and EndNotifier for deterministic tests.
type fakeDevice struct {
	mu sync.Mutex

	loaded     string
	loads      []string
	volumes    []int
	seeks      []time.Duration
	stops      int
	busy       bool
	done       chan struct{}
	failFirst  int             // Start calls that fail before succeeding
	alwaysFail map[string]bool // paths whose Start never succeeds
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{done: make(chan struct{})}
}

func (d *fakeDevice) Load(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = path
	d.loads = append(d.loads, path)
	// loading over an unfinished track closes its end signal, like the
	// real device does, so a blocked waiter is released
	d.closeDoneLocked()
	d.done = make(chan struct{})
	return nil
}

// closeDoneLocked closes the current end-of-track channel exactly once.
func (d *fakeDevice) closeDoneLocked() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.alwaysFail[d.loaded] {
		return assert.AnError
	}
	if d.failFirst > 0 {
		d.failFirst--
		return assert.AnError
	}
	d.busy = true
	return nil
}

func (d *fakeDevice) Pause()  {}
func (d *fakeDevice) Resume() {}

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.busy = false
	d.closeDoneLocked()
	d.done = make(chan struct{})
}

func (d *fakeDevice) SetVolume(percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volumes = append(d.volumes, percent)
}

func (d *fakeDevice) SeekForward(dur time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = append(d.seeks, dur)
	return nil
}

func (d *fakeDevice) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func (d *fakeDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// finishTrack simulates the loaded track reaching its end.
func (d *fakeDevice) finishTrack() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
	d.closeDoneLocked()
}

func (d *fakeDevice) loadedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.loads))
	copy(out, d.loads)
	return out
}

func (d *fakeDevice) volumeCalls() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.volumes))
	copy(out, d.volumes)
	return out
}

type fakeSpeech struct {
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeech) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return nil
}

func testPlaylist(names ...string) *playlist.Playlist {
	tracks := make([]track.Track, len(names))
	for i, n := range names {
		tracks[i] = track.New("/music/" + n + ".mp3")
	}
	return &playlist.Playlist{Tracks: tracks}
}

func fastConfig() Config {
	return Config{
		StartAttempts: 3,
		RetryDelay:    time.Millisecond,
		PollInterval:  time.Millisecond,
	}
}

func TestEngine_PlayEmptyPlaylist(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, &playlist.Playlist{}, nil, nil, fastConfig())

	require.NoError(t, eng.Play())
	assert.Equal(t, StateStopped, eng.State())
	assert.Empty(t, dev.loadedPaths())
}

func TestEngine_PlayStartsAndAnnounces(t *testing.T) {
	dev := newFakeDevice()
	speech := &fakeSpeech{}
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), speech, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())

	assert.Equal(t, StatePlaying, eng.State())
	assert.Equal(t, []string{"/music/alpha.mp3"}, dev.loadedPaths())
	assert.Equal(t, []string{"Now Playing: alpha"}, speech.spoken)
	// duck for the announcement, then back to full
	assert.Equal(t, []int{20, 100}, dev.volumeCalls())
}

func TestEngine_PlayWhilePlayingIsNoop(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	require.NoError(t, eng.Play())

	assert.Len(t, dev.loadedPaths(), 1)
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	dev := newFakeDevice()
	dev.failFirst = 2
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())

	assert.Equal(t, StatePlaying, eng.State())
	// all three attempts were against the same track
	assert.Equal(t, []string{"/music/alpha.mp3", "/music/alpha.mp3", "/music/alpha.mp3"}, dev.loadedPaths())
	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "alpha", cur.DisplayName)
}

func TestEngine_SkipAfterExhaustedAttempts(t *testing.T) {
	dev := newFakeDevice()
	dev.alwaysFail = map[string]bool{"/music/alpha.mp3": true}
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())

	assert.Equal(t, StatePlaying, eng.State())
	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "beta", cur.DisplayName)
}

func TestEngine_AllTracksUnplayableStops(t *testing.T) {
	dev := newFakeDevice()
	dev.alwaysFail = map[string]bool{
		"/music/alpha.mp3": true,
		"/music/beta.mp3":  true,
	}
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())

	require.NoError(t, eng.Play())
	eng.Stop()

	assert.Equal(t, StateStopped, eng.State())
}

func TestEngine_PauseResumeIdempotent(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())
	defer eng.Stop()

	// pause with nothing playing is a no-op
	eng.Pause()
	assert.Equal(t, StateStopped, eng.State())

	require.NoError(t, eng.Play())
	eng.Pause()
	assert.Equal(t, StatePaused, eng.State())
	eng.Pause()
	assert.Equal(t, StatePaused, eng.State())

	eng.Resume()
	assert.Equal(t, StatePlaying, eng.State())
	eng.Resume()
	assert.Equal(t, StatePlaying, eng.State())
}

func TestEngine_PlayWhilePausedResumes(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	eng.Pause()
	require.NoError(t, eng.Play())

	assert.Equal(t, StatePlaying, eng.State())
	// resume, not a fresh load
	assert.Len(t, dev.loadedPaths(), 1)
}

func TestEngine_StopFromAnyState(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())

	// stop while stopped
	eng.Stop()
	assert.Equal(t, StateStopped, eng.State())

	require.NoError(t, eng.Play())
	eng.Stop()
	assert.Equal(t, StateStopped, eng.State())

	// stop while paused
	require.NoError(t, eng.Play())
	eng.Pause()
	eng.Stop()
	assert.Equal(t, StateStopped, eng.State())
}

func TestEngine_NextWrapsAround(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	eng.Next()

	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "beta", cur.DisplayName)

	eng.Next()
	cur, ok = eng.Current()
	require.True(t, ok)
	assert.Equal(t, "alpha", cur.DisplayName)
}

func TestEngine_AutoAdvanceOnTrackEnd(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	dev.finishTrack()

	require.Eventually(t, func() bool {
		cur, ok := eng.Current()
		return ok && cur.DisplayName == "beta"
	}, time.Second, time.Millisecond)
	assert.Equal(t, StatePlaying, eng.State())
}

func TestEngine_StaleFinishIgnored(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta", "gamma"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())

	// manual skip bumps the generation; the superseded track's end signal
	// fires when beta loads over it and must not advance again
	eng.Next()

	time.Sleep(20 * time.Millisecond)
	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "beta", cur.DisplayName)
}

func TestEngine_AutoAdvanceAfterManualNext(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta", "gamma"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	eng.Next()

	cur, ok := eng.Current()
	require.True(t, ok)
	require.Equal(t, "beta", cur.DisplayName)

	// the skipped-to track ending must still advance the playlist
	dev.finishTrack()

	require.Eventually(t, func() bool {
		cur, ok := eng.Current()
		return ok && cur.DisplayName == "gamma"
	}, time.Second, time.Millisecond)
	assert.Equal(t, StatePlaying, eng.State())
}

func TestEngine_FinishWhilePausedIgnored(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	eng.Pause()
	dev.finishTrack()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatePaused, eng.State())
	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "alpha", cur.DisplayName)
}

func TestEngine_PlaySpecific(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("morning sun", "night drive"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.PlaySpecific("night drive"))

	cur, ok := eng.Current()
	require.True(t, ok)
	assert.Equal(t, "night drive", cur.DisplayName)
	assert.Equal(t, StatePlaying, eng.State())

	// the play position moved, so next continues from the match
	eng.Next()
	cur, ok = eng.Current()
	require.True(t, ok)
	assert.Equal(t, "morning sun", cur.DisplayName)
}

func TestEngine_PlaySpecificNoMatch(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("morning sun"), nil, nil, fastConfig())

	err := eng.PlaySpecific("completely different")
	require.ErrorIs(t, err, playlist.ErrNoMatch)
	assert.Equal(t, StateStopped, eng.State())
}

func TestEngine_SetVolume(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		wantErr bool
	}{
		{name: "zero", percent: 0},
		{name: "full", percent: 100},
		{name: "mid", percent: 55},
		{name: "negative", percent: -1, wantErr: true},
		{name: "over full", percent: 101, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())

			err := eng.SetVolume(tt.percent)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidVolume)
				assert.Empty(t, dev.volumeCalls())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int{tt.percent}, dev.volumeCalls())
		})
	}
}

func TestEngine_SeekForward(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())
	defer eng.Stop()

	require.ErrorIs(t, eng.SeekForward(0), ErrInvalidSeek)
	require.ErrorIs(t, eng.SeekForward(-time.Second), ErrInvalidSeek)

	// seek while stopped is a silent no-op
	require.NoError(t, eng.SeekForward(10*time.Second))
	assert.Empty(t, dev.seeks)

	require.NoError(t, eng.Play())
	require.NoError(t, eng.SeekForward(10*time.Second))
	assert.Equal(t, []time.Duration{10 * time.Second}, dev.seeks)
}

func TestEngine_ReloadClampsPosition(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha", "beta", "gamma"), nil, nil, fastConfig())
	defer eng.Stop()

	require.NoError(t, eng.Play())
	eng.Next()
	eng.Next()

	eng.Reload(testPlaylist("one", "two"))
	pos, total := eng.QueueStatus()
	assert.Equal(t, 2, total)
	assert.LessOrEqual(t, pos, total)
}

func TestEngine_ReloadEmptyStops(t *testing.T) {
	dev := newFakeDevice()
	eng := NewEngine(dev, testPlaylist("alpha"), nil, nil, fastConfig())

	require.NoError(t, eng.Play())
	eng.Reload(&playlist.Playlist{})

	assert.Equal(t, StateStopped, eng.State())
	_, ok := eng.Current()
	assert.False(t, ok)
}
