package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"voice2action/internal/domain"
)

// Recorder collects published events in arrival order and optionally mirrors
// them to a writer as JSON lines.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
	out    io.Writer
	enc    *json.Encoder
}

// NewRecorder creates a Recorder. out may be nil.
func NewRecorder(out io.Writer) *Recorder {
	r := &Recorder{out: out}
	if out != nil {
		r.enc = json.NewEncoder(out)
	}
	return r
}

// Handle satisfies domain.EventHandler.
func (r *Recorder) Handle(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if r.enc != nil {
		_ = r.enc.Encode(e)
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (r *Recorder) Count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
