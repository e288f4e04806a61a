package sched

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/docsched/internal/agent"
	"github.com/me/docsched/internal/event"
	"github.com/me/docsched/internal/host"
	"github.com/me/docsched/internal/queue"
	"github.com/me/docsched/pkg/model"
)

// fakeSpawner hands out sequential pids without starting processes.
type fakeSpawner struct {
	nextPID int
	spawned []string // job ids in dispatch order
	failFor map[string]bool
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPID: 1000, failFor: make(map[string]bool)}
}

func (f *fakeSpawner) Spawn(j *model.Job, h *model.Host) (int, error) {
	if f.failFor[j.ID] {
		return 0, errors.New("exec format error")
	}
	f.nextPID++
	f.spawned = append(f.spawned, j.ID)
	return f.nextPID, nil
}

type fixedLimits map[string]int

func (f fixedLimits) MaxFor(name string) int { return f[name] }

type fixture struct {
	bus     *event.Bus
	hosts   *host.Registry
	agents  *agent.Registry
	queue   *queue.Queue
	spawner *fakeSpawner
	core    *Core
}

func newFixture(t *testing.T, limits fixedLimits) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		bus:     event.NewBus(logger),
		hosts:   host.NewRegistry(),
		agents:  agent.NewRegistry(),
		queue:   queue.New(),
		spawner: newFakeSpawner(),
	}
	if limits == nil {
		limits = fixedLimits{}
	}
	f.core = New(f.bus, f.hosts, f.agents, f.queue, f.spawner, limits, logger)
	f.core.RegisterHandlers()
	return f
}

func (f *fixture) addHost(name string, max int) {
	f.hosts.Insert(&model.Host{Name: name, Address: "localhost", Max: max})
}

func (f *fixture) submit(t *testing.T, id, jobType string, exclusive bool) {
	t.Helper()
	err := f.queue.Push(&model.Job{
		ID:        id,
		Type:      jobType,
		Exclusive: exclusive,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("push %s: %v", id, err)
	}
}

func (f *fixture) tick() {
	f.bus.Signal(event.SchedulerTick, nil)
}

// reap delivers a death batch for the given pids with the given exit code.
func (f *fixture) reap(code int, pids ...int) {
	batch := make([]event.AgentExit, 0, len(pids))
	for _, pid := range pids {
		batch = append(batch, event.AgentExit{PID: pid, ExitCode: code})
	}
	f.bus.Signal(event.AgentDeath, batch)
}

func TestTick_DispatchesPendingFIFO(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 4)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)

	f.tick()

	if got := f.spawner.spawned; len(got) != 2 || got[0] != "job_1" || got[1] != "job_2" {
		t.Fatalf("spawned = %v, want [job_1 job_2]", got)
	}
	if f.agents.Count() != 2 {
		t.Errorf("agents = %d, want 2", f.agents.Count())
	}
	if f.queue.Get("job_1").State != model.JobStateAssigned {
		t.Errorf("job_1 state = %s, want ASSIGNED", f.queue.Get("job_1").State)
	}
}

func TestTick_HostCapacityBound(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	for _, id := range []string{"job_1", "job_2", "job_3", "job_4"} {
		f.submit(t, id, "wordscan", false)
	}

	f.tick()

	if len(f.spawner.spawned) != 2 {
		t.Fatalf("spawned %d agents on a capacity-2 host, want 2", len(f.spawner.spawned))
	}
	if f.queue.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", f.queue.PendingCount())
	}

	// Ticking again without any deaths must not over-commit.
	f.tick()
	if len(f.spawner.spawned) != 2 {
		t.Errorf("tick over-committed: spawned = %v", f.spawner.spawned)
	}

	// One death frees one slot for the next pending job, in order.
	f.reap(0, 1001)
	if len(f.spawner.spawned) != 3 || f.spawner.spawned[2] != "job_3" {
		t.Errorf("spawned = %v, want job_3 next", f.spawner.spawned)
	}
}

func TestTick_TypeLimitDefersJob(t *testing.T) {
	f := newFixture(t, fixedLimits{"wordscan": 1})
	f.addHost("localhost", 8)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)

	f.tick()

	if len(f.spawner.spawned) != 1 {
		t.Fatalf("spawned = %v, want only job_1", f.spawner.spawned)
	}
	if f.queue.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", f.queue.PendingCount())
	}

	f.reap(0, 1001)
	if len(f.spawner.spawned) != 2 || f.spawner.spawned[1] != "job_2" {
		t.Errorf("spawned = %v, want job_2 after slot freed", f.spawner.spawned)
	}
}

func TestAgentDeath_BatchResolvedInOneInvocation(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 3)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)
	f.submit(t, "job_3", "wordscan", false)
	f.tick()

	if f.agents.Count() != 3 {
		t.Fatalf("agents = %d, want 3", f.agents.Count())
	}

	// All three reaped in one batch, one handler invocation.
	f.reap(0, 1001, 1002, 1003)

	if f.agents.Count() != 0 {
		t.Errorf("agents = %d after batch death, want 0", f.agents.Count())
	}
	for _, id := range []string{"job_1", "job_2", "job_3"} {
		if st := f.queue.Get(id).State; st != model.JobStateFinished {
			t.Errorf("%s state = %s, want FINISHED", id, st)
		}
	}
	if h := f.hosts.Get("localhost"); h.Running != 0 {
		t.Errorf("host running = %d, want 0", h.Running)
	}
}

func TestAgentDeath_NonZeroExitFailsJob(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 1)
	f.submit(t, "job_1", "wordscan", false)
	f.tick()

	f.reap(137, 1001)

	if st := f.queue.Get("job_1").State; st != model.JobStateFailed {
		t.Errorf("job_1 state = %s, want FAILED", st)
	}
	if f.agents.Count() != 0 {
		t.Errorf("agents = %d, want 0", f.agents.Count())
	}
}

func TestAgentDeath_UntrackedPIDIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 1)
	f.submit(t, "job_1", "wordscan", false)
	f.tick()

	f.reap(0, 4242) // never an agent

	if f.agents.Count() != 1 {
		t.Errorf("agents = %d, want 1 (untracked pid must not touch records)", f.agents.Count())
	}
	if st := f.queue.Get("job_1").State; st != model.JobStateAssigned {
		t.Errorf("job_1 state = %s, want ASSIGNED", st)
	}
}

func TestSpawnError_FailsJobAndContinues(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 4)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)
	f.spawner.failFor["job_1"] = true

	f.tick()

	if st := f.queue.Get("job_1").State; st != model.JobStateFailed {
		t.Errorf("job_1 state = %s, want FAILED", st)
	}
	if len(f.spawner.spawned) != 1 || f.spawner.spawned[0] != "job_2" {
		t.Errorf("spawned = %v, want [job_2]", f.spawner.spawned)
	}
	// The failed spawn's host reservation is rolled back.
	if h := f.hosts.Get("localhost"); h.Running != 1 {
		t.Errorf("host running = %d, want 1", h.Running)
	}
}

func TestExclusive_HeldUntilDrained(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	f.submit(t, "job_a", "wordscan", false)
	f.submit(t, "job_b", "reindex", true)
	f.submit(t, "job_c", "wordscan", false)

	// First tick: both non-exclusive jobs run concurrently while the
	// exclusive one is held back.
	f.tick()
	if got := f.spawner.spawned; len(got) != 2 || got[0] != "job_a" || got[1] != "job_c" {
		t.Fatalf("spawned = %v, want [job_a job_c]", got)
	}
	if st := f.core.Snapshot(); st.HeldJobID != "job_b" {
		t.Fatalf("held = %q, want job_b", st.HeldJobID)
	}

	// Further ticks dispatch nothing new while the hold is pending.
	f.tick()
	if len(f.spawner.spawned) != 2 {
		t.Fatalf("spawned = %v while holding exclusive", f.spawner.spawned)
	}

	// One death is not a drain: the held job keeps waiting.
	f.reap(0, 1001)
	if len(f.spawner.spawned) != 2 {
		t.Fatalf("spawned = %v with one agent still running", f.spawner.spawned)
	}

	// Full drain: the exclusive job runs alone and lockout engages.
	f.reap(0, 1002)
	if got := f.spawner.spawned; len(got) != 3 || got[2] != "job_b" {
		t.Fatalf("spawned = %v, want job_b after drain", got)
	}
	if st := f.core.Snapshot(); !st.Lockout || st.HeldJobID != "" {
		t.Fatalf("snapshot = %+v, want lockout with no held job", st)
	}

	// Lockout blocks new work even though capacity exists.
	f.submit(t, "job_d", "wordscan", false)
	f.tick()
	if len(f.spawner.spawned) != 3 {
		t.Fatalf("spawned = %v during lockout", f.spawner.spawned)
	}

	// Exclusive job exits: lockout clears and job_d dispatches.
	f.reap(0, 1003)
	if got := f.spawner.spawned; len(got) != 4 || got[3] != "job_d" {
		t.Fatalf("spawned = %v, want job_d after lockout release", got)
	}
	if st := f.core.Snapshot(); st.Lockout {
		t.Error("lockout still set after exclusive job finished")
	}
}

// An exclusive hold must not starve the non-exclusive jobs queued behind
// it: with A, B (exclusive), C submitted to a capacity-2 host, A and C run
// together on the first tick while B waits for the drain.
func TestExclusive_NonExclusiveRunsWhileHeld(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	f.submit(t, "job_a", "wordscan", false)
	f.submit(t, "job_b", "reindex", true)
	f.submit(t, "job_c", "wordscan", false)

	f.tick()

	if got := f.spawner.spawned; len(got) != 2 || got[0] != "job_a" || got[1] != "job_c" {
		t.Fatalf("spawned = %v, want [job_a job_c] concurrently", got)
	}
	st := f.core.Snapshot()
	if st.HeldJobID != "job_b" || st.Agents != 2 || st.Lockout {
		t.Fatalf("snapshot = %+v, want job_b held behind two running agents", st)
	}
	if got := f.queue.Get("job_b").State; got != model.JobStatePending {
		t.Errorf("job_b state = %s, want PENDING while held", got)
	}
}

// Only one exclusive job is held at a time; a second exclusive job and
// everything behind it wait in FIFO order until the first completes.
func TestExclusive_SecondExclusiveWaitsBehindFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	f.submit(t, "job_a", "wordscan", false)
	f.submit(t, "job_b1", "reindex", true)
	f.submit(t, "job_b2", "reindex", true)
	f.submit(t, "job_c", "wordscan", false)

	f.tick()
	if got := f.spawner.spawned; len(got) != 1 || got[0] != "job_a" {
		t.Fatalf("spawned = %v, want [job_a] with job_b1 held", got)
	}

	f.reap(0, 1001) // drain -> b1 runs alone, lockout
	f.reap(0, 1002) // b1 done -> b2 held, c dispatches alongside
	f.reap(0, 1003) // c done -> drain -> b2 runs alone
	f.reap(0, 1004)

	want := []string{"job_a", "job_b1", "job_c", "job_b2"}
	got := f.spawner.spawned
	if len(got) != len(want) {
		t.Fatalf("spawned = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("spawned = %v, want %v", got, want)
		}
	}
}

func TestExclusive_SpawnErrorClearsHoldWithoutLockout(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	f.submit(t, "job_b", "reindex", true)
	f.spawner.failFor["job_b"] = true

	// System is already drained, so the hold resolves on the same tick;
	// the spawn failure must not lock the scheduler out.
	f.tick()

	if st := f.queue.Get("job_b").State; st != model.JobStateFailed {
		t.Errorf("job_b state = %s, want FAILED", st)
	}
	st := f.core.Snapshot()
	if st.Lockout || st.HeldJobID != "" {
		t.Errorf("snapshot = %+v, want no lockout and no hold", st)
	}

	// The next tick resumes normal dispatch.
	f.submit(t, "job_c", "wordscan", false)
	f.tick()
	if got := f.spawner.spawned; len(got) != 1 || got[0] != "job_c" {
		t.Errorf("spawned = %v, want [job_c]", got)
	}
}

func TestClose_StopsDispatchAndDrains(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 4)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)
	f.tick()

	f.submit(t, "job_3", "wordscan", false)
	f.bus.Signal(event.SchedulerClose, nil)

	// No new dispatch after close, even with capacity and pending work.
	f.tick()
	if len(f.spawner.spawned) != 2 {
		t.Fatalf("spawned = %v after close", f.spawner.spawned)
	}
	if st := f.core.Snapshot(); !st.Closing {
		t.Error("snapshot not closing")
	}

	// Repeated close requests are harmless.
	f.bus.Signal(event.SchedulerClose, nil)
	f.bus.Signal(event.SchedulerClose, nil)

	// Running agents drain naturally; the loop terminates once drained.
	f.reap(0, 1001, 1002)

	done := make(chan struct{})
	go func() {
		f.bus.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not terminate after drain while closing")
	}
}

func TestClose_ImmediateWhenIdle(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 4)

	f.bus.Signal(event.SchedulerClose, nil)

	done := make(chan struct{})
	go func() {
		f.bus.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle close did not terminate the event loop")
	}
}

// The canonical mixed workload: A (non-exclusive), B (exclusive),
// C (non-exclusive) on one host with capacity 2. A and C run together,
// then B runs alone once both have finished.
func TestExclusive_MixedWorkloadOrdering(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 2)
	f.submit(t, "job_a", "wordscan", false)
	f.submit(t, "job_b", "reindex", true)
	f.submit(t, "job_c", "wordscan", false)

	f.tick()        // A and C dispatch, B held
	f.reap(0, 1001) // A finishes, C still running
	f.reap(0, 1002) // C finishes -> drain -> B dispatches, lockout
	f.reap(0, 1003) // B finishes

	want := []string{"job_a", "job_c", "job_b"}
	if got := f.spawner.spawned; len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("spawned = %v, want %v", f.spawner.spawned, want)
	}
	for _, id := range want {
		if st := f.queue.Get(id).State; st != model.JobStateFinished {
			t.Errorf("%s state = %s, want FINISHED", id, st)
		}
	}
	st := f.core.Snapshot()
	if st.Lockout || st.Agents != 0 || st.ActiveJobs != 0 || st.PendingJobs != 0 {
		t.Errorf("final snapshot = %+v, want fully drained", st)
	}
}

func TestSnapshot_Counters(t *testing.T) {
	f := newFixture(t, nil)
	f.addHost("localhost", 1)
	f.submit(t, "job_1", "wordscan", false)
	f.submit(t, "job_2", "wordscan", false)
	f.tick()

	st := f.core.Snapshot()
	if st.Agents != 1 || st.ActiveJobs != 1 || st.PendingJobs != 1 || st.Hosts != 1 {
		t.Errorf("snapshot = %+v", st)
	}
	if st.Closing || st.Lockout || st.HeldJobID != "" {
		t.Errorf("snapshot flags = %+v, want idle flags", st)
	}
	if st.Uptime == "" {
		t.Error("uptime not reported")
	}
}
