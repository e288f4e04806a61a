// Package sched implements the scheduler core: the per-tick decision
// function over the job queue and the host/agent registries, including
// exclusivity lockout and graceful drain.
package sched

import (
	"log/slog"
	"sync"
	"time"

	"github.com/me/docsched/internal/agent"
	"github.com/me/docsched/internal/event"
	"github.com/me/docsched/internal/host"
	"github.com/me/docsched/internal/queue"
	"github.com/me/docsched/pkg/model"
)

// Spawner starts a worker process for a job on a host.
type Spawner interface {
	Spawn(job *model.Job, h *model.Host) (pid int, err error)
}

// TypeLimiter bounds how many agents of one template type may run at once.
// A limit of 0 means unlimited.
type TypeLimiter interface {
	MaxFor(name string) int
}

// Core makes one dispatch decision per tick. All of its state is mutated
// inside event bus handlers on the loop goroutine; the mutex only guards
// the Snapshot read path used by the status API.
type Core struct {
	bus     *event.Bus
	hosts   *host.Registry
	agents  *agent.Registry
	queue   *queue.Queue
	spawner Spawner
	limits  TypeLimiter
	logger  *slog.Logger

	mu        sync.Mutex
	closing   bool
	lockout   bool
	held      *model.Job // exclusive job awaiting a drained system
	startedAt time.Time
}

// New creates a scheduler core.
func New(bus *event.Bus, hosts *host.Registry, agents *agent.Registry,
	q *queue.Queue, spawner Spawner, limits TypeLimiter, logger *slog.Logger) *Core {
	return &Core{
		bus:       bus,
		hosts:     hosts,
		agents:    agents,
		queue:     q,
		spawner:   spawner,
		limits:    limits,
		logger:    logger.With("component", "sched"),
		startedAt: time.Now(),
	}
}

// RegisterHandlers wires the core onto the bus.
func (c *Core) RegisterHandlers() {
	c.bus.Register(event.SchedulerTick, c.onTick)
	c.bus.Register(event.AgentDeath, c.onAgentDeath)
	c.bus.Register(event.SchedulerClose, c.onClose)
}

func (c *Core) onTick(any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decide()
}

// onClose requests graceful shutdown: dispatch stops, outstanding agents
// drain naturally, and the loop terminates on the first drained tick.
// A repeated close request is a no-op beyond the already-set flag.
func (c *Core) onClose(any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		c.logger.Debug("close already in progress")
		return
	}
	c.closing = true
	c.logger.Info("graceful close requested, draining",
		"agents", c.agents.Count(), "active_jobs", c.queue.ActiveCount())
	c.decide()
}

// onAgentDeath resolves a reaped pid batch: every corresponding agent
// record is removed, its host slot released, and its job completed, all in
// this single handler invocation. A re-evaluation follows immediately so
// freed capacity is used without waiting for the next tick.
func (c *Core) onAgentDeath(payload any) {
	batch, ok := payload.([]event.AgentExit)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, exit := range batch {
		a := c.agents.Remove(exit.PID)
		if a == nil {
			c.logger.Debug("reaped pid is not a tracked agent", "pid", exit.PID)
			continue
		}
		a.State = model.AgentStateReaped
		c.hosts.Release(a.Host.Name)

		if exit.ExitCode == 0 {
			if err := c.queue.Finish(a.Job.ID); err != nil {
				c.logger.Warn("finish job", "job_id", a.Job.ID, "error", err)
			}
			c.logger.Info("agent finished", "pid", exit.PID, "job_id", a.Job.ID)
		} else {
			if err := c.queue.Fail(a.Job.ID); err != nil {
				c.logger.Warn("fail job", "job_id", a.Job.ID, "error", err)
			}
			c.logger.Warn("agent died",
				"pid", exit.PID, "job_id", a.Job.ID, "exit_code", exit.ExitCode)
		}
	}

	c.decide()
}

// decide is the scheduling algorithm proper. It is a total function of
// current state: "no action" is a valid outcome, never an error.
// Callers hold c.mu.
func (c *Core) decide() {
	nAgents := c.agents.Count()
	nJobs := c.queue.ActiveCount()
	drained := nAgents == 0 && nJobs == 0

	// Sole exit condition of the event loop.
	if c.closing && drained {
		c.logger.Info("drained while closing, terminating event loop")
		c.bus.Terminate()
		return
	}

	if c.lockout && drained {
		c.logger.Info("exclusive lockout released")
		c.lockout = false
	}

	if !c.lockout && !c.closing {
	pull:
		for {
			j := c.queue.Next()
			if j == nil {
				break
			}
			if j.Exclusive {
				if c.held != nil {
					// One exclusive hold at a time; the rest of the
					// queue waits behind the second one.
					c.queue.Requeue(j)
					break pull
				}
				c.logger.Info("holding exclusive job until system drains", "job_id", j.ID)
				c.held = j
				// Non-exclusive jobs behind the hold keep dispatching.
				continue
			}
			switch c.dispatch(j) {
			case dispatched, failed:
				// Either running or terminal; move to the next job.
			case deferred:
				// No capacity this tick; keep FIFO order and stop pulling.
				c.queue.Requeue(j)
				break pull
			}
		}
	}

	if c.held != nil && !c.closing && c.agents.Count() == 0 && c.queue.ActiveCount() == 0 {
		switch c.dispatch(c.held) {
		case dispatched:
			c.lockout = true
			c.held = nil
		case failed:
			c.held = nil
		case deferred:
			// Try again next tick.
		}
	}
}

type dispatchResult int

const (
	dispatched dispatchResult = iota // agent running
	deferred                        // no capacity, job stays pending
	failed                          // spawn error, job is terminal
)

// dispatch places j on the least-loaded host with capacity and starts its
// agent.
func (c *Core) dispatch(j *model.Job) dispatchResult {
	if limit := c.limits.MaxFor(j.Type); limit > 0 &&
		c.agents.CountByType(j.Type) >= limit {
		c.logger.Debug("agent type at concurrency limit", "type", j.Type, "limit", limit)
		return deferred
	}

	h := c.hosts.Reserve()
	if h == nil {
		c.logger.Warn("no host has capacity, job stays pending", "job_id", j.ID)
		return deferred
	}

	pid, err := c.spawner.Spawn(j, h)
	if err != nil {
		c.hosts.Release(h.Name)
		c.logger.Error("spawn failed", "job_id", j.ID, "host", h.Name, "error", err)
		if ferr := c.queue.Fail(j.ID); ferr != nil {
			c.logger.Warn("fail job after spawn error", "job_id", j.ID, "error", ferr)
		}
		return failed
	}

	c.queue.Activate(j.ID)
	c.agents.Insert(&agent.Agent{
		PID:       pid,
		Host:      h,
		Job:       j,
		State:     model.AgentStateRunning,
		StartedAt: time.Now().UTC(),
	})
	return dispatched
}

// Close requests graceful shutdown from outside the signal path (--test
// mode and the shutdown API).
func (c *Core) Close() {
	c.onClose(nil)
}

// Snapshot returns a point-in-time view of the scheduler for the status API.
func (c *Core) Snapshot() model.SchedulerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := model.SchedulerStatus{
		Closing:     c.closing,
		Lockout:     c.lockout,
		Agents:      c.agents.Count(),
		ActiveJobs:  c.queue.ActiveCount(),
		PendingJobs: c.queue.PendingCount(),
		Hosts:       c.hosts.Count(),
		Uptime:      time.Since(c.startedAt).Round(time.Second).String(),
	}
	if c.held != nil {
		st.HeldJobID = c.held.ID
	}
	return st
}
