// Package tasks provides the in-memory task list behind the add/search
// task voice commands.
package tasks

import (
	"strings"
	"sync"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cockroachdb/errors"
)

var ErrNoMatch = errors.New("no task matches the query")

// searchThreshold is the minimum similarity for a fuzzy task lookup.
const searchThreshold = 0.7

// Task is a single remembered item.
type Task struct {
	Name    string
	AddedAt time.Time
}

// Manager holds the task list. Safe for concurrent use, though in practice
// the arbiter serializes all access through its single session.
type Manager struct {
	mu    sync.Mutex
	items []Task
}

// NewManager creates an empty task list.
func NewManager() *Manager {
	return &Manager{}
}

// Add prepends a task, newest first.
func (m *Manager) Add(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]Task{{Name: name, AddedAt: time.Now()}}, m.items...)
}

// All returns a copy of the task list.
func (m *Manager) All() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.items))
	copy(out, m.items)
	return out
}

// Search returns the task whose name best matches the query, exact
// case-insensitive first, then fuzzy with similarity >= 0.7.
func (m *Manager) Search(query string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Task{}, ErrNoMatch
	}

	for _, t := range m.items {
		if strings.ToLower(t.Name) == q {
			return t, nil
		}
	}

	lev := metrics.NewLevenshtein()
	bestIdx := -1
	bestScore := 0.0
	for i, t := range m.items {
		score := strutil.Similarity(q, strings.ToLower(t.Name), lev)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestScore < searchThreshold {
		return Task{}, errors.Wrapf(ErrNoMatch, "%q", query)
	}
	return m.items[bestIdx], nil
}
