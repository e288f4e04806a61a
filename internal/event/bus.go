// Package event provides the scheduler's single-threaded cooperative
// dispatcher and the bridge that turns OS signals into bus activations.
//
// All registry and scheduler-state mutation in the daemon happens inside
// handlers executed by the bus loop; asynchronous contexts only hand off
// fully-formed payloads via Post.
package event

import (
	"log/slog"
	"sync"
)

// Event names used by the scheduler.
const (
	AgentDeath     = "agent_death"    // payload: []AgentExit
	SchedulerTick  = "scheduler_tick" // payload: nil
	DatabaseSync   = "database_sync"  // payload: nil
	SchedulerClose = "scheduler_close"
	ConfigReload   = "config_reload"
)

// AgentExit reports one reaped child process. The payload of an AgentDeath
// activation is the complete batch collected in a single reaping pass.
type AgentExit struct {
	PID      int
	ExitCode int
}

// Handler processes one activation of a named event.
type Handler func(payload any)

type activation struct {
	name    string
	payload any
}

// Bus is a process-wide, single-threaded dispatcher: named events, each with
// zero or more handlers invoked synchronously in registration order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	queue    chan activation
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		queue:    make(chan activation, 256),
		stopCh:   make(chan struct{}),
		logger:   logger.With("component", "eventbus"),
	}
}

// Register appends h to the handler list for name. Handlers run in
// registration order.
func (b *Bus) Register(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Signal invokes every handler registered for name synchronously, in order,
// on the calling goroutine. It never recurses into the dispatcher.
func (b *Bus) Signal(name string, payload any) {
	b.mu.RLock()
	hs := b.handlers[name]
	b.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

// Post enqueues an activation for the Run loop. It is the only safe way to
// fire an event from outside the loop goroutine; the payload must be fully
// formed before Post returns and must not reference transient shared state.
func (b *Bus) Post(name string, payload any) {
	select {
	case b.queue <- activation{name: name, payload: payload}:
	case <-b.stopCh:
		b.logger.Debug("dropping activation after terminate", "event", name)
	}
}

// Run is the single blocking loop of the process: it waits for the next
// posted activation, invokes its handlers to completion, and loops. It
// returns only after a handler (or another goroutine) calls Terminate.
func (b *Bus) Run() error {
	b.logger.Debug("event loop entered")
	for {
		// Terminate wins over queued activations.
		select {
		case <-b.stopCh:
			b.logger.Debug("event loop terminated")
			return nil
		default:
		}

		select {
		case <-b.stopCh:
			b.logger.Debug("event loop terminated")
			return nil
		case act := <-b.queue:
			b.Signal(act.name, act.payload)
		}
	}
}

// Terminate stops the Run loop. Safe to call from handlers and from other
// goroutines; subsequent calls are no-ops.
func (b *Bus) Terminate() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}
