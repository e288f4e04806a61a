package agent

import (
	"sort"
	"sync"

	"github.com/me/docsched/internal/config"
)

// Templates is the registry of agent template definitions. It is rebuilt
// wholesale on config reload.
type Templates struct {
	mu sync.RWMutex
	m  map[string]config.AgentTemplate
}

// NewTemplates creates an empty template registry.
func NewTemplates() *Templates {
	return &Templates{m: make(map[string]config.AgentTemplate)}
}

// Replace swaps in a new template set.
func (t *Templates) Replace(templates []config.AgentTemplate) {
	m := make(map[string]config.AgentTemplate, len(templates))
	for _, tmpl := range templates {
		m[tmpl.Name] = tmpl
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = m
}

// Get returns the template with the given name.
func (t *Templates) Get(name string) (config.AgentTemplate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tmpl, ok := t.m[name]
	return tmpl, ok
}

// IsExclusive reports whether the named template runs exclusively. Unknown
// templates are not exclusive.
func (t *Templates) IsExclusive(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.m[name].Exclusive
}

// MaxFor returns the concurrency limit for the named template. Zero means
// unlimited, and unknown templates are unlimited.
func (t *Templates) MaxFor(name string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.m[name].Max
}

// Names returns the registered template names, sorted.
func (t *Templates) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.m))
	for name := range t.m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered templates.
func (t *Templates) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
