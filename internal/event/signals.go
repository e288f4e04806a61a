package event

import (
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

// AgentCounter reports how many agent processes are currently tracked. Used
// to size the reap batch before entering the wait loop.
type AgentCounter interface {
	Count() int
}

// Bridge translates OS signal delivery into well-ordered bus activations.
// Nothing beyond reaping and posting happens on the signal path; all
// decision logic runs later inside bus handlers.
//
// Mapping:
//
//	SIGCHLD             -> one agent_death carrying every exited child
//	ticker (CheckTime)  -> scheduler_tick, then database_sync
//	SIGTERM/QUIT/INT    -> scheduler_close
//	SIGHUP              -> config_reload
type Bridge struct {
	bus      *Bus
	agents   AgentCounter
	interval time.Duration
	logger   *slog.Logger

	sigCh  chan os.Signal
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBridge creates a signal bridge posting to bus. interval is the periodic
// re-evaluation period (the sole driver of scheduler ticks).
func NewBridge(bus *Bus, agents AgentCounter, interval time.Duration, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		agents:   agents,
		interval: interval,
		logger:   logger.With("component", "signals"),
		sigCh:    make(chan os.Signal, 16),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start registers with the OS signal facility and begins translating.
func (br *Bridge) Start() {
	signal.Notify(br.sigCh,
		unix.SIGCHLD, unix.SIGTERM, unix.SIGQUIT, unix.SIGINT, unix.SIGHUP)
	go br.run()
	br.logger.Debug("signal bridge started", "interval", br.interval)
}

// Stop deregisters the signal handlers and waits for the bridge goroutine.
func (br *Bridge) Stop() {
	signal.Stop(br.sigCh)
	close(br.stopCh)
	<-br.doneCh
}

func (br *Bridge) run() {
	defer close(br.doneCh)

	ticker := time.NewTicker(br.interval)
	defer ticker.Stop()

	for {
		select {
		case <-br.stopCh:
			return
		case <-ticker.C:
			br.bus.Post(SchedulerTick, nil)
			br.bus.Post(DatabaseSync, nil)
		case sig := <-br.sigCh:
			br.handle(sig)
		}
	}
}

func (br *Bridge) handle(sig os.Signal) {
	switch sig {
	case unix.SIGCHLD:
		if batch := br.Reap(); len(batch) > 0 {
			br.bus.Post(AgentDeath, batch)
		}
	case unix.SIGTERM, unix.SIGQUIT, unix.SIGINT:
		br.logger.Info("received termination signal, shutting down scheduler", "signal", sig)
		br.bus.Post(SchedulerClose, nil)
	case unix.SIGHUP:
		br.logger.Info("received hangup signal, reloading configuration")
		br.bus.Post(ConfigReload, nil)
	}
}

// Reap collects every currently-exited child in one non-blocking pass. A
// single SIGCHLD can stand for several near-simultaneous deaths, so the
// batch buffer is sized to the current agent count before waiting.
func (br *Bridge) Reap() []AgentExit {
	batch := make([]AgentExit, 0, br.agents.Count()+1)

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			break
		}
		batch = append(batch, AgentExit{PID: pid, ExitCode: exitCode(ws)})
		br.logger.Debug("reaped child", "pid", pid, "exit_code", exitCode(ws))
	}
	return batch
}

// exitCode normalizes a wait status: the exit code for a normal exit,
// 128+signal for a signalled death.
func exitCode(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
