// docschedd is the document analysis scheduler daemon. It owns the job
// queue, spawns agent processes on configured hosts, and reacts to child
// exits and operator signals through a single event loop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/me/docsched/internal/agent"
	"github.com/me/docsched/internal/config"
	"github.com/me/docsched/internal/event"
	"github.com/me/docsched/internal/host"
	"github.com/me/docsched/internal/lock"
	"github.com/me/docsched/internal/logging"
	"github.com/me/docsched/internal/queue"
	"github.com/me/docsched/internal/sched"
	"github.com/me/docsched/internal/server"
	"github.com/me/docsched/internal/store"
	"github.com/me/docsched/pkg/model"
)

// daemonizedEnv marks the re-executed child so it does not fork again.
const daemonizedEnv = "DOCSCHED_DAEMONIZED"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagConfig   = flag.String("config", "", "Path to config file")
		flagDaemon   = flag.Bool("daemon", false, "Detach and run in the background")
		flagDatabase = flag.Bool("database", false, "Initialize the database schema and exit")
		flagKill     = flag.Bool("kill", false, "Stop a running daemon and exit")
		flagLog      = flag.String("log", "", "Write logs to this file instead of stderr")
		flagPort     = flag.Int("port", 0, "Listen port (overrides config)")
		flagReset    = flag.Bool("reset", false, "Discard queued and stranded jobs at startup")
		flagTest     = flag.Bool("test", false, "Start, verify wiring, then close immediately")
		flagVerbose  = flag.Int("verbose", 0, "Verbosity override: 1 info, 2 debug")
	)
	flag.Parse()

	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		cfg, err = config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 1
		}
	}
	if *flagPort != 0 {
		cfg.Port = *flagPort
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if *flagVerbose > 0 {
		level = logging.VerboseLevel(*flagVerbose)
	}

	logger := logging.NewLogger(level, cfg.LogFormat)
	if *flagLog != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(level, cfg.LogFormat, *flagLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			return 1
		}
		defer closeLog()
		logger = fileLogger
	}

	lk := lock.New(lock.DefaultDir(), logger)

	// --kill signals the running daemon through its lock token. No daemon
	// is not an error: the end state is the same.
	if *flagKill {
		pid, err := lk.Kill(unix.SIGQUIT)
		if err != nil {
			logger.Error("kill daemon", "error", err)
			return 1
		}
		if pid == 0 {
			logger.Info("no daemon running")
		} else {
			logger.Info("daemon signalled", "pid", pid)
		}
		return 0
	}

	// --database initializes the schema and exits; useful for provisioning.
	if *flagDatabase {
		st, err := openStore(cfg, logger)
		if err != nil {
			logger.Error("open database", "error", err)
			return 1
		}
		defer st.Close()
		logger.Info("database initialized", "path", cfg.DBPath)
		return 0
	}

	if err := dropPrivileges(cfg, logger); err != nil {
		logger.Error("drop privileges", "error", err)
		return 1
	}

	if *flagDaemon && os.Getenv(daemonizedEnv) == "" {
		if err := daemonize(); err != nil {
			logger.Error("daemonize", "error", err)
			return 1
		}
		return 0
	}

	if _, err := lk.Acquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			logger.Error("daemon already running", "pid", lk.Owner(), "lock", lk.Path())
		} else {
			logger.Error("acquire lock", "error", err)
		}
		return 1
	}
	defer lk.Release()

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		return 1
	}
	defer st.Close()

	if *flagReset {
		n, err := st.ResetQueue(context.Background())
		if err != nil {
			logger.Error("reset queue", "error", err)
			return 1
		}
		logger.Info("queue reset", "jobs_discarded", n)
	}

	// Registries and queue. All of these are mutated only inside bus
	// handlers once the loop starts.
	hosts := host.NewRegistry()
	loadHosts(hosts, cfg)
	agents := agent.NewRegistry()
	templates := agent.NewTemplates()
	loadTemplates(templates, cfg, logger)
	q := queue.New()

	bus := event.NewBus(logger)
	spawner := agent.NewSpawner(templates, logger)
	core := sched.New(bus, hosts, agents, q, spawner, templates, logger)
	core.RegisterHandlers()

	syncer := store.NewSyncer(st, q, templates, logger)
	bus.Register(event.DatabaseSync, syncer.Handle)

	// SIGHUP: re-read config and agent templates without restarting. Live
	// agents keep their host seats; only capacities and templates change.
	bus.Register(event.ConfigReload, func(any) {
		reloaded := cfg
		if *flagConfig != "" {
			var err error
			reloaded, err = config.Load(*flagConfig)
			if err != nil {
				logger.Error("config reload failed, keeping current", "error", err)
				return
			}
		}
		reloadHosts(hosts, agents, reloaded)
		loadTemplates(templates, reloaded, logger)
		logger.Info("configuration reloaded",
			"hosts", hosts.Count(), "templates", templates.Count())
	})

	bridge := event.NewBridge(bus, agents, cfg.CheckInterval.Std(), logger)

	srv := server.New(st, core, hosts, agents, logger,
		server.WithShutdown(func() { bus.Post(event.SchedulerClose, nil) }),
		server.WithKill(func() int { return agent.KillAll(agents, logger) }),
	)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info("api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", "error", err)
			bus.Post(event.SchedulerClose, nil)
		}
	}()

	// Prime the loop: load persisted pending jobs and take a first
	// scheduling decision before the first ticker interval elapses.
	bus.Post(event.DatabaseSync, nil)
	bus.Post(event.SchedulerTick, nil)

	// --test verifies the full startup path and then drains out.
	if *flagTest {
		logger.Info("test mode, closing after startup")
		bus.Post(event.SchedulerClose, nil)
	}

	bridge.Start()
	logger.Info("scheduler running",
		"pid", os.Getpid(), "hosts", hosts.Count(), "templates", templates.Count())

	bus.Run()

	// The loop has drained and terminated: stop signal translation, stop
	// accepting API requests, flush final job states.
	bridge.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}

	if err := syncer.Flush(context.Background()); err != nil {
		logger.Error("final state flush", "error", err)
	}

	logger.Info("scheduler stopped")
	return 0
}

func openStore(cfg config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	path := cfg.DBPath
	if path == "" {
		path = "docsched.db"
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func loadHosts(hosts *host.Registry, cfg config.Config) {
	for name, h := range cfg.Hosts {
		hosts.Insert(&model.Host{
			Name:    name,
			Address: h.Address,
			Dir:     h.Dir,
			Max:     h.Max,
		})
	}
}

// reloadHosts rebuilds the host registry from cfg, carrying over the
// running count of each surviving host so live agents keep their seats.
func reloadHosts(hosts *host.Registry, agents *agent.Registry, cfg config.Config) {
	running := make(map[string]int)
	for _, a := range agents.List() {
		running[a.Host.Name]++
	}

	hosts.Clear()
	for name, h := range cfg.Hosts {
		hosts.Insert(&model.Host{
			Name:    name,
			Address: h.Address,
			Dir:     h.Dir,
			Max:     h.Max,
			Running: running[name],
		})
	}
}

func loadTemplates(templates *agent.Templates, cfg config.Config, logger *slog.Logger) {
	if cfg.AgentDir == "" {
		return
	}
	loaded, err := config.LoadAgentDir(cfg.AgentDir, logger)
	if err != nil {
		logger.Warn("agent templates unavailable", "dir", cfg.AgentDir, "error", err)
		return
	}
	templates.Replace(loaded)
}

// dropPrivileges switches to the configured unprivileged user and group.
// Group first: setgid is no longer permitted once setuid has happened.
func dropPrivileges(cfg config.Config, logger *slog.Logger) error {
	if cfg.Group != "" {
		g, err := user.LookupGroup(cfg.Group)
		if err != nil {
			return fmt.Errorf("lookup group %s: %w", cfg.Group, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("parse gid %s: %w", g.Gid, err)
		}
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("setgid %d: %w", gid, err)
		}
		logger.Debug("group changed", "group", cfg.Group, "gid", gid)
	}

	if cfg.User != "" {
		u, err := user.Lookup(cfg.User)
		if err != nil {
			return fmt.Errorf("lookup user %s: %w", cfg.User, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("parse uid %s: %w", u.Uid, err)
		}
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("setuid %d: %w", uid, err)
		}
		logger.Debug("user changed", "user", cfg.User, "uid", uid)
	}
	return nil
}

// daemonize re-executes the binary detached in its own session. The child
// sees daemonizedEnv and skips this path.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonizedEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	return cmd.Process.Release()
}
