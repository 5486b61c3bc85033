// Package history keeps a bounded, append-only log of alert lifecycle events.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// DefaultMaxEntries is the default capacity of a Log.
const DefaultMaxEntries = 10000

// Log is a FIFO ring buffer of history entries. When full, appending evicts
// the oldest entry.
type Log struct {
	mu    sync.RWMutex
	buf   []models.HistoryEntry
	start int // index of the oldest entry
	size  int
	clock clock.Clock

	subMu       sync.RWMutex
	subscribers map[int]func(models.HistoryEntry)
	nextSub     int
}

// New creates a Log holding at most maxEntries entries.
func New(maxEntries int, c clock.Clock) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{
		buf:         make([]models.HistoryEntry, maxEntries),
		clock:       clock.OrReal(c),
		subscribers: make(map[int]func(models.HistoryEntry)),
	}
}

// Capacity returns the maximum number of entries.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Len returns the current number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Record appends an entry stamped with the current time and returns it.
func (l *Log) Record(alertID string, status models.HistoryStatus, details map[string]any) models.HistoryEntry {
	entry := models.HistoryEntry{
		ID:        uuid.New().String(),
		AlertID:   alertID,
		Status:    status,
		Timestamp: l.clock.Now(),
		Details:   details,
	}
	l.Append(entry)
	return entry
}

// Append adds an entry, evicting the oldest one when the log is full.
func (l *Log) Append(entry models.HistoryEntry) {
	l.mu.Lock()
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = entry
		l.size++
	} else {
		l.buf[l.start] = entry
		l.start = (l.start + 1) % capacity
	}
	l.mu.Unlock()

	l.notify(entry)
}

// Entries returns all entries oldest first.
func (l *Log) Entries() []models.HistoryEntry {
	return l.filter(func(models.HistoryEntry) bool { return true })
}

// ForAlert returns the entries of one alert oldest first. An empty alertID
// returns every entry.
func (l *Log) ForAlert(alertID string) []models.HistoryEntry {
	if alertID == "" {
		return l.Entries()
	}
	return l.filter(func(e models.HistoryEntry) bool { return e.AlertID == alertID })
}

func (l *Log) filter(keep func(models.HistoryEntry) bool) []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		e := l.buf[(l.start+i)%len(l.buf)]
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// PurgeBefore removes entries older than cutoff and returns how many were
// removed. Relative order of the remaining entries is preserved.
func (l *Log) PurgeBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := len(l.buf)
	kept := make([]models.HistoryEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		e := l.buf[(l.start+i)%capacity]
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := l.size - len(kept)
	if removed == 0 {
		return 0
	}

	l.buf = make([]models.HistoryEntry, capacity)
	copy(l.buf, kept)
	l.start = 0
	l.size = len(kept)
	return removed
}

// Subscribe registers fn to be called for every appended entry. The returned
// function removes the subscription. fn must not block.
func (l *Log) Subscribe(fn func(models.HistoryEntry)) (unsubscribe func()) {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subscribers[id] = fn
	l.subMu.Unlock()

	return func() {
		l.subMu.Lock()
		delete(l.subscribers, id)
		l.subMu.Unlock()
	}
}

func (l *Log) notify(entry models.HistoryEntry) {
	l.subMu.RLock()
	defer l.subMu.RUnlock()
	for _, fn := range l.subscribers {
		fn(entry)
	}
}
