// Package logging provides the in-memory structured log bus shared by all
// components. Entries are kept in a bounded FIFO buffer and fanned out
// synchronously to subscribers in registration order.
package logging

import (
	"sync"
	"time"
)

// Level is the severity of a log entry
type Level string

const (
	// LevelDebug is for verbose diagnostic output
	LevelDebug Level = "debug"

	// LevelInfo is for normal operational messages
	LevelInfo Level = "info"

	// LevelWarn is for recoverable problems
	LevelWarn Level = "warn"

	// LevelError is for failures
	LevelError Level = "error"
)

// DefaultCapacity is the buffer size used when none is configured
const DefaultCapacity = 500

// Entry represents a structured log entry. Entries are immutable once
// published.
type Entry struct {
	// Timestamp of the log entry
	Timestamp time.Time `json:"timestamp"`

	// Level of the log entry
	Level Level `json:"level"`

	// Message is the log message
	Message string `json:"message"`

	// Fields contains additional context
	Fields map[string]interface{} `json:"fields,omitempty"`

	// Error is the error text, if the entry carries one
	Error string `json:"error,omitempty"`
}

// Subscriber receives every entry published after registration
type Subscriber func(Entry)

type subscription struct {
	id int
	fn Subscriber
}

// Bus is a bounded publish/subscribe channel for log entries. The zero
// value is not usable; create one with NewBus.
type Bus struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
	subs    []subscription
	nextID  int
}

// NewBus creates a new log bus with the given buffer capacity. A
// non-positive capacity falls back to DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{cap: capacity}
}

// Publish appends an entry to the buffer, evicting the oldest entry if the
// buffer is full, and invokes every registered subscriber in subscription
// order. A panicking subscriber does not prevent delivery to the rest.
func (b *Bus) Publish(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Level == "" {
		entry.Level = LevelInfo
	}

	b.mu.Lock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	// Deliver outside the lock so subscribers may publish or unsubscribe
	// without deadlocking.
	for _, s := range subs {
		deliver(s.fn, entry)
	}
}

func deliver(fn Subscriber, entry Entry) {
	defer func() {
		// A subscriber panic must not take down the producer.
		_ = recover()
	}()
	fn(entry)
}

// Subscribe registers a callback invoked once per entry published after
// registration. The returned function removes the registration; calling it
// more than once is a no-op.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Snapshot returns the current buffer contents, most-recent-last. If level
// is non-empty only entries of that level are returned. If limit is
// positive, only the last limit entries (after filtering) are returned.
func (b *Bus) Snapshot(level Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if level != "" && e.Level != level {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of buffered entries
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Debug publishes a debug-level entry
func (b *Bus) Debug(msg string, fields map[string]interface{}) {
	b.Publish(Entry{Level: LevelDebug, Message: msg, Fields: fields})
}

// Info publishes an info-level entry
func (b *Bus) Info(msg string, fields map[string]interface{}) {
	b.Publish(Entry{Level: LevelInfo, Message: msg, Fields: fields})
}

// Warn publishes a warn-level entry
func (b *Bus) Warn(msg string, fields map[string]interface{}) {
	b.Publish(Entry{Level: LevelWarn, Message: msg, Fields: fields})
}

// Error publishes an error-level entry. The error may be nil.
func (b *Bus) Error(msg string, err error, fields map[string]interface{}) {
	entry := Entry{Level: LevelError, Message: msg, Fields: fields}
	if err != nil {
		entry.Error = err.Error()
	}
	b.Publish(entry)
}
