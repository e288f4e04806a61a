package agent

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/me/docsched/pkg/model"
)

// Spawner starts worker processes from agent templates. Processes are
// started and released immediately; the scheduler observes their exit
// through the signal bridge's reaping pass, never through Wait.
type Spawner struct {
	templates *Templates
	logger    *slog.Logger
}

// NewSpawner creates a Spawner drawing commands from templates.
func NewSpawner(templates *Templates, logger *slog.Logger) *Spawner {
	return &Spawner{
		templates: templates,
		logger:    logger.With("component", "spawner"),
	}
}

// Spawn starts an agent for job on h and returns the child pid. The job id
// is appended to the template command so the worker knows its assignment.
func (s *Spawner) Spawn(job *model.Job, h *model.Host) (int, error) {
	tmpl, ok := s.templates.Get(job.Type)
	if !ok {
		return 0, fmt.Errorf("no agent template for job type %q", job.Type)
	}

	cmd := buildCommand(tmpl.Command, job.ID, h)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start agent %s for job %s: %w", tmpl.Name, job.ID, err)
	}
	pid := cmd.Process.Pid

	// Release the handle: the bridge's Wait4 pass is the only reaper.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release agent process %d: %w", pid, err)
	}

	s.logger.Info("agent spawned",
		"agent", tmpl.Name, "job_id", job.ID, "host", h.Name, "pid", pid)
	return pid, nil
}

// buildCommand assembles the worker command line. Local hosts run the
// command directly in the host's working directory; remote hosts are
// reached over ssh with a cd into the remote directory.
func buildCommand(command, jobID string, h *model.Host) *exec.Cmd {
	if isLocal(h.Address) {
		parts := strings.Fields(command)
		args := append(parts[1:], jobID)
		cmd := exec.Command(parts[0], args...)
		cmd.Dir = h.Dir
		return cmd
	}

	remote := fmt.Sprintf("cd %s && %s %s", h.Dir, command, jobID)
	return exec.Command("ssh", h.Address, remote)
}

func isLocal(address string) bool {
	switch address {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// KillAll sends SIGTERM to every tracked agent process. This is the
// administrative kill path; graceful close never touches running agents.
// It returns the number of processes signalled.
func KillAll(r *Registry, logger *slog.Logger) int {
	n := 0
	for _, pid := range r.PIDs() {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil {
			logger.Warn("failed to signal agent", "pid", pid, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		logger.Info("killed agents", "count", n)
	}
	return n
}
