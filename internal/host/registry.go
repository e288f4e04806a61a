// Package host tracks the pool of machines available to run agents and
// each machine's capacity.
package host

import (
	"sort"
	"sync"

	"github.com/me/docsched/pkg/model"
)

// Registry owns every Host. A host's Running count is mutated only through
// Reserve and Release, so it can never exceed Max.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]*model.Host
}

// NewRegistry creates an empty host registry.
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]*model.Host)}
}

// Insert adds or replaces a host.
func (r *Registry) Insert(h *model.Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[h.Name] = h
}

// Get returns the host with the given name, or nil.
func (r *Registry) Get(name string) *model.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hosts[name]
}

// Remove deletes the host with the given name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hosts, name)
}

// Count returns the number of registered hosts.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hosts)
}

// List returns all hosts sorted by name.
func (r *Registry) List() []*model.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear removes every host. Used on config reload and shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts = make(map[string]*model.Host)
}

// Reserve picks the least-loaded host with remaining capacity, increments
// its agent count, and returns it. Ties break by ascending name. It returns
// nil when no host has a free slot.
func (r *Registry) Reserve() *model.Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *model.Host
	for _, h := range r.hosts {
		if !h.HasCapacity() {
			continue
		}
		if best == nil || h.Running < best.Running ||
			(h.Running == best.Running && h.Name < best.Name) {
			best = h
		}
	}
	if best == nil {
		return nil
	}
	best.Running++
	return best
}

// Release decrements the agent count of the named host. A host removed by a
// reload may no longer exist; that is not an error.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[name]; ok && h.Running > 0 {
		h.Running--
	}
}
