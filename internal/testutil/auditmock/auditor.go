package auditmock

import (
	"sync"

	"github.com/xela07ax/compliance-console/internal/audit"
)

// Recorder satisfies audit.Auditor and keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []audit.AuditEvent
}

func (r *Recorder) Log(event audit.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.AuditEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the Action of each recorded event, in order.
func (r *Recorder) Actions() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}
