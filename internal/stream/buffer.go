package stream

import "sync"

// Buffer collects events in memory. Used for unattended runs (alert
// investigations keep their event log for the verdict) and in tests.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Emit(ev Event) error {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

// Events returns a copy of everything emitted so far.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}
