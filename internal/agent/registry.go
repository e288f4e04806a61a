// Package agent tracks live worker processes and spawns new ones from
// configured templates. Agents are fire-and-forget once started; their
// lifecycle ends when the signal bridge reaps them.
package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/me/docsched/pkg/model"
)

// Agent is a running worker process executing one job on one host. Host and
// Job are references; the host and job registries keep ownership.
type Agent struct {
	PID       int
	Host      *model.Host
	Job       *model.Job
	State     model.AgentState
	StartedAt time.Time
}

// Info returns the API view of the agent.
func (a *Agent) Info() model.AgentInfo {
	return model.AgentInfo{
		PID:       a.PID,
		Host:      a.Host.Name,
		JobID:     a.Job.ID,
		JobType:   a.Job.Type,
		State:     a.State,
		StartedAt: a.StartedAt,
	}
}

// Registry tracks live agents keyed by pid, since every death notification
// resolves pids back to agent records.
type Registry struct {
	mu     sync.RWMutex
	agents map[int]*Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[int]*Agent)}
}

// Insert adds an agent.
func (r *Registry) Insert(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.PID] = a
}

// Remove deletes and returns the agent with the given pid, or nil if the
// pid is not tracked (e.g. a reaped process that was never an agent).
func (r *Registry) Remove(pid int) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[pid]
	if !ok {
		return nil
	}
	delete(r.agents, pid)
	return a
}

// Get returns the agent with the given pid, or nil.
func (r *Registry) Get(pid int) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[pid]
}

// Count returns the number of live agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByType returns the number of live agents running jobs of the given
// template type.
func (r *Registry) CountByType(jobType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, a := range r.agents {
		if a.Job.Type == jobType {
			n++
		}
	}
	return n
}

// List returns all agents sorted by pid.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// PIDs returns the pids of all live agents.
func (r *Registry) PIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int, 0, len(r.agents))
	for pid := range r.agents {
		out = append(out, pid)
	}
	sort.Ints(out)
	return out
}

// Clear removes every agent record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[int]*Agent)
}
