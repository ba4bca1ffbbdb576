// Package prompt loads agent instruction templates. Built-in templates are
// embedded in the binary; a directory can override any of them by file name.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.md
var builtinFS embed.FS

// Template names.
const (
	Coordinator      = "coordinator-template"
	Utility          = "utility"
	OfficeAutomation = "office-automation"
	SpamDetection    = "spam-detection"
	EmailDraft       = "email-draft"
)

// CatalogPlaceholder is replaced with the worker catalog in the coordinator
// template.
const CatalogPlaceholder = "{{AGENT_CATALOG}}"

// Library holds the loaded templates keyed by name (file name without .md).
type Library struct {
	templates map[string]string
	sources   map[string]string
}

// Load reads the built-in templates and then any *.md files in dir, which
// replace built-ins of the same name. An empty dir loads built-ins only.
func Load(dir string) (*Library, error) {
	lib := &Library{
		templates: make(map[string]string),
		sources:   make(map[string]string),
	}

	entries, err := builtinFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read builtin templates: %w", err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read builtin template %s: %w", e.Name(), err)
		}
		lib.add(e.Name(), string(data), "builtin")
	}

	if dir == "" {
		return lib, nil
	}
	overrides, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("prompt directory %s does not exist", dir)
		}
		return nil, fmt.Errorf("read prompt directory: %w", err)
	}
	for _, e := range overrides {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", path, err)
		}
		lib.add(e.Name(), string(data), path)
	}

	if t, ok := lib.templates[Coordinator]; ok && !strings.Contains(t, CatalogPlaceholder) {
		return nil, fmt.Errorf("prompt %s (%s) is missing the %s placeholder",
			Coordinator, lib.sources[Coordinator], CatalogPlaceholder)
	}
	return lib, nil
}

func (l *Library) add(file, content, source string) {
	name := strings.TrimSuffix(file, ".md")
	l.templates[name] = content
	l.sources[name] = source
}

// Get returns the named template.
func (l *Library) Get(name string) (string, error) {
	t, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	return t, nil
}

// MustGet is Get for built-in names, which always exist.
func (l *Library) MustGet(name string) string {
	t, err := l.Get(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Source reports where a template was loaded from: "builtin" or a file path.
func (l *Library) Source(name string) string { return l.sources[name] }

// Names lists the loaded template names in sorted order.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for n := range l.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
