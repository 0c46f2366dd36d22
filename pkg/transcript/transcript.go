package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a single line in the transcript.
type Entry struct {
	ID      string
	Speaker Speaker
	Text    string
	Time    time.Time
}

// NewEntry creates an entry with a fresh ID and the current time.
func NewEntry(speaker Speaker, text string) Entry {
	return Entry{
		ID:      uuid.NewString(),
		Speaker: speaker,
		Text:    text,
		Time:    time.Now(),
	}
}

// Transcript is an append-only, ordered list of entries.
// The zero value is ready to use. It is safe for concurrent use.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// Append adds an entry to the end of the transcript.
func (t *Transcript) Append(e Entry) error {
	if !e.Speaker.Valid() {
		return fmt.Errorf("transcript: invalid speaker %q", e.Speaker)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, e)

	return nil
}

// AppendUser is shorthand for Append(NewEntry(User, text)).
func (t *Transcript) AppendUser(text string) Entry {
	e := NewEntry(User, text)
	_ = t.Append(e)
	return e
}

// AppendBot is shorthand for Append(NewEntry(Bot, text)).
func (t *Transcript) AppendBot(text string) Entry {
	e := NewEntry(Bot, text)
	_ = t.Append(e)
	return e
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// At returns the entry at the given index.
// It panics if the index is out of range.
func (t *Transcript) At(index int) Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.entries[index]
}

// Last returns the most recent entry and true, or a zero Entry and false if
// the transcript is empty.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.entries) == 0 {
		return Entry{}, false
	}

	return t.entries[len(t.entries)-1], true
}

// Entries returns a copy of all entries in order.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := make([]Entry, len(t.entries))
	copy(cp, t.entries)

	return cp
}

// Each iterates over entries in order. If fn returns false, iteration stops.
func (t *Transcript) Each(fn func(int, Entry) bool) {
	for i, e := range t.Entries() {
		if !fn(i, e) {
			return
		}
	}
}

// BySpeaker returns all entries produced by the given speaker.
func (t *Transcript) BySpeaker(s Speaker) []Entry {
	var out []Entry
	for _, e := range t.Entries() {
		if e.Speaker == s {
			out = append(out, e)
		}
	}
	return out
}
