package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voice2action/internal/domain"
)

// Registry holds named tools. It implements domain.ToolExecutor.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

var _ domain.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty tool registry.
// If logger is non-nil, tools are wrapped with schema validation on Register;
// compilation errors are logged and the tool is registered unwrapped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds tools. Returns error if a name is already registered.
func (r *Registry) Register(tools ...domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}

		if r.logger != nil {
			wrapped, err := WithSchemaValidation(t)
			if err != nil {
				r.logger.Warn("schema validation disabled for tool",
					"tool", name, "error", err)
			} else {
				t = wrapped
			}
		}
		r.tools[name] = t
	}
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	tools := r.List()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Schemas returns all tool schemas for LLM function-calling, sorted by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}
