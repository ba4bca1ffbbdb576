package multiagent

import (
	"fmt"
	"log/slog"
	"strings"

	"voice2action/internal/domain"
)

// Registry is the ordered set of workers available for delegation. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	workers []domain.TextAgent
	byName  map[string]domain.TextAgent
	logger  *slog.Logger
}

// NewRegistry validates workers and builds a Registry. Worker names must be
// non-blank and unique ignoring case.
func NewRegistry(workers []domain.TextAgent, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		workers: make([]domain.TextAgent, 0, len(workers)),
		byName:  make(map[string]domain.TextAgent, len(workers)),
		logger:  logger,
	}
	for i, w := range workers {
		if w == nil {
			return nil, domain.NewSubSystemError("agent", "Registry.New", domain.ErrInvalidInput,
				fmt.Sprintf("worker %d is nil", i))
		}
		name := strings.TrimSpace(w.Name())
		if name == "" {
			return nil, domain.NewSubSystemError("agent", "Registry.New", domain.ErrInvalidInput,
				fmt.Sprintf("worker %d has a blank name", i))
		}
		key := strings.ToLower(name)
		if _, exists := r.byName[key]; exists {
			return nil, domain.NewSubSystemError("agent", "Registry.New", domain.ErrDuplicate,
				fmt.Sprintf("worker %q", name))
		}
		r.byName[key] = w
		r.workers = append(r.workers, w)
		logger.Debug("worker registered", "name", name, "capabilities", len(w.Capabilities()))
	}
	return r, nil
}

// Lookup resolves a worker by case-insensitive exact name.
func (r *Registry) Lookup(name string) (domain.TextAgent, bool) {
	w, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return w, ok
}

// Workers returns the workers in registration order.
func (r *Registry) Workers() []domain.TextAgent {
	out := make([]domain.TextAgent, len(r.workers))
	copy(out, r.workers)
	return out
}

// Names returns worker names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.workers))
	for i, w := range r.workers {
		names[i] = w.Name()
	}
	return names
}

// Len returns the number of registered workers.
func (r *Registry) Len() int { return len(r.workers) }

// Catalog renders one "- Name: cap, cap" line per worker for coordinator
// instructions.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for i, w := range r.workers {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(w.Name())
		b.WriteString(": ")
		b.WriteString(strings.Join(w.Capabilities(), ", "))
	}
	return b.String()
}

// Vocabulary returns the tool names advertised by all workers: each
// capability up to its first "(", de-duplicated ignoring case.
func (r *Registry) Vocabulary() []string {
	seen := make(map[string]bool)
	var vocab []string
	for _, w := range r.workers {
		for _, c := range w.Capabilities() {
			name := ToolName(c)
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			vocab = append(vocab, name)
		}
	}
	return vocab
}

// ToolName extracts the tool name from a capability tag such as
// "SetReminder(task, dueDate, reminderDate?)".
func ToolName(capability string) string {
	name, _, _ := strings.Cut(capability, "(")
	return strings.TrimSpace(name)
}
