package client

import "sync"

// Entry is a provisional item held by an EntryLog. The same *Entry handed out
// by Apply must be passed to Commit or Revert; identity, not value, decides
// which entry is removed, so two entries with equal payloads never collide.
type Entry struct {
	Value     any
	Committed bool
}

// EntryLog holds optimistic entries alongside committed ones. Typical use is
// a chat transcript: the message is applied before the create call, reverted
// if the call fails, committed once the job is accepted.
type EntryLog struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewEntryLog() *EntryLog {
	return &EntryLog{}
}

// Apply appends a provisional entry and returns its handle.
func (l *EntryLog) Apply(value any) *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := &Entry{Value: value}
	l.entries = append(l.entries, e)
	return e
}

// Commit marks the entry permanent. Unknown or already-reverted entries are
// ignored.
func (l *EntryLog) Commit(entry *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			e.Committed = true
			return
		}
	}
}

// Revert removes exactly the entry Apply returned, scanning by pointer so an
// equal-valued sibling survives.
func (l *EntryLog) Revert(entry *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == entry {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// Values returns the payloads in application order.
func (l *EntryLog) Values() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]any, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Value)
	}
	return out
}

func (l *EntryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
