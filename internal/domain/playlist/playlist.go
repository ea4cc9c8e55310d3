// Package playlist provides the playlist store: an ordered collection of
// tracks enumerated from a music directory.
package playlist

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cockroachdb/errors"

	"github.com/a3ro-dev/FAM/internal/domain/track"
)

var (
	ErrNotDirectory = errors.New("music path is not a directory")
	ErrNoMatch      = errors.New("no track matches the requested name")
)

// nameMatchThreshold is the minimum similarity ratio for a fuzzy
// display-name match.
const nameMatchThreshold = 0.8

// defaultExtensions is the audio file allow-list applied by Load.
var defaultExtensions = []string{".mp3", ".wav", ".flac"}

// Playlist holds an ordered collection of tracks. The playback engine owns
// the play position; the playlist itself never changes after Load.
type Playlist struct {
	Tracks  []track.Track
	Shuffle bool
}

// Load enumerates audio files in dir by extension allow-list and builds a
// playlist. A directory with no audio files yields a valid empty playlist;
// a missing path or a non-directory fails with ErrNotDirectory.
func Load(dir string, shuffle bool) (*Playlist, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrNotDirectory, "stat %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrNotDirectory, "%s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read music directory")
	}

	tracks := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t := track.New(filepath.Join(dir, e.Name()))
		if !allowedExtension(t.Ext()) {
			continue
		}
		tracks = append(tracks, t)
	}

	// ReadDir order is lexical already, but make it explicit so the queue
	// order is stable across platforms.
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })

	if shuffle {
		rand.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
	}

	return &Playlist{Tracks: tracks, Shuffle: shuffle}, nil
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// FindByName resolves a spoken track name to a playlist entry. Exact
// case-insensitive display-name matches win; otherwise the best fuzzy match
// with similarity >= 0.8 is returned. Returns ErrNoMatch when neither exists.
func (p *Playlist) FindByName(query string) (track.Track, int, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return track.Track{}, 0, ErrNoMatch
	}

	for i, t := range p.Tracks {
		if strings.ToLower(t.DisplayName) == q {
			return t, i, nil
		}
	}

	lev := metrics.NewLevenshtein()
	bestIdx := -1
	bestScore := 0.0
	for i, t := range p.Tracks {
		score := strutil.Similarity(q, strings.ToLower(t.DisplayName), lev)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < nameMatchThreshold {
		return track.Track{}, 0, errors.Wrapf(ErrNoMatch, "%q", query)
	}
	return p.Tracks[bestIdx], bestIdx, nil
}

func allowedExtension(ext string) bool {
	for _, allowed := range defaultExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
