package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mama-run/mama/internal/agentloop"
	"github.com/mama-run/mama/internal/agentproc"
	"github.com/mama-run/mama/internal/config"
	"github.com/mama-run/mama/internal/cronsched"
	"github.com/mama-run/mama/internal/gatewaytools"
	"github.com/mama-run/mama/internal/handlers"
	"github.com/mama-run/mama/internal/heartbeat"
	"github.com/mama-run/mama/internal/identity"
	"github.com/mama-run/mama/internal/lane"
	"github.com/mama-run/mama/internal/memlog"
	"github.com/mama-run/mama/internal/memoryapi"
	"github.com/mama-run/mama/internal/promptctx"
	"github.com/mama-run/mama/internal/sessionpool"
	"github.com/mama-run/mama/internal/store"
	"github.com/mama-run/mama/internal/store/pg"
	"github.com/mama-run/mama/internal/store/sqlite"
)

// App is the fully wired process: every long-running piece of the core
// bound once at startup, mirroring goclaw's runGateway() assembly but
// with a single subprocess backend chosen from the environment by
// selectBackend instead of a provider registry.
type App struct {
	Config    *config.Config
	Workspace string
	Logger    *slog.Logger

	Schedules store.ScheduleStore
	Sessions  *sessionpool.Pool
	MemLog    *memlog.Logger

	Loop      *agentloop.Loop
	Cron      *cronsched.Scheduler
	Heartbeat *heartbeat.Scheduler
	KeepAlive *heartbeat.KeepAlive

	backend agentproc.Backend
}

// buildApp assembles an App from cfg, opening the schedule store, the
// subprocess backend, the tool executor, and every dependent component
// in the order AgentLoop needs them constructed.
func buildApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	home, _ := os.UserHomeDir()
	workspace := filepath.Join(home, ".mama", "workspace")
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	schedules, err := openScheduleStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open schedule store: %w", err)
	}

	ml := memlog.New(filepath.Join(home, ".mama", "memory"), logger)

	backend := selectBackend(cfg, workspace)

	roles := identity.NewManager(cfg.Roles, "default")

	var memClient memoryapi.Client
	if url := os.Getenv("MAMA_MEMORY_API_URL"); url != "" {
		memClient = memoryapi.NewHTTPClient(url)
	}

	// Senders is left nil: bot transports (Discord/Telegram/WhatsApp) are
	// out-of-scope external collaborators per spec.md §1, so there is
	// nothing for the CLI process to register here.
	tools := gatewaytools.New(gatewaytools.Deps{
		Roles:  roles,
		Memory: memClient,
		FS:     gatewaytools.NewLocalFilesystem(workspace, true),
		Shell:  gatewaytools.NewHostShell(workspace),
	})

	ctx := context.Background()
	postTool := handlers.NewPostToolHandler(ctx, memClient, logger)
	preComp := handlers.NewPreCompactHandler(memClient, logger)

	sessions := sessionpool.New(nil, cfg.Sessions.NearThresholdRatio, cfg.Sessions.DefaultContextSize, cfg.Sessions.IdleTimeout)

	loop := agentloop.New(sessions, lane.New(), backend, tools, postTool, preComp,
		promptctx.NewEnhancer(), roles, cfg.MultiAgent.Agents, cfg.Agent.MaxTurns, logger, ml)

	cron := cronsched.New(schedules, cronExecuteFunc(loop), cronsched.Options{
		RunMissedOnStartup: true,
	}, logger)

	hbRunner := agentloop.NewHeartbeatRunner(loop, "cli", "heartbeat")
	hb := heartbeat.New(hbRunner, cfg.Heartbeat, nil)

	ka := heartbeat.NewKeepAlive(15*time.Minute, func(ctx context.Context) error {
		// The subprocess backend refreshes its own OAuth token on every
		// Prompt call; the keep-alive's job is purely to ensure the
		// process doesn't go idle long enough for the provider to expire
		// its session, so a one-word "ping" prompt is enough to touch it.
		_, err := backend.Prompt(ctx, agentproc.PromptInput{Text: "ping"})
		return err
	}, func(err error) {
		logger.Warn("keepalive probe failed", "error", err)
	})

	return &App{
		Config: cfg, Workspace: workspace, Logger: logger,
		Schedules: schedules, Sessions: sessions, MemLog: ml,
		Loop: loop, Cron: cron, Heartbeat: hb, KeepAlive: ka,
		backend: backend,
	}, nil
}

func openScheduleStore(cfg *config.Config) (store.ScheduleStore, error) {
	if cfg.Database.PostgresDSN != "" {
		return pg.Open(cfg.Database.PostgresDSN)
	}
	return sqlite.Open(cfg.Database.SQLitePath)
}

// selectBackend resolves the default agent's subprocess backend: a
// non-empty MAMA_CODEX_COMMAND or CODEX_COMMAND selects the Codex
// app-server backend (always launched as `codex`; the variable's value is
// not used as the command), otherwise the Claude CLI is used.
func selectBackend(cfg *config.Config, workspace string) agentproc.Backend {
	if os.Getenv("MAMA_CODEX_COMMAND") != "" || os.Getenv("CODEX_COMMAND") != "" {
		return agentproc.NewCodexAppServerProcess(workspace)
	}
	var allowed, blocked []string
	return agentproc.NewPersistentClaudeProcess(workspace, allowed, blocked)
}

// cronExecuteFunc adapts AgentLoop.Run to cronsched.ExecuteFunc, always
// targeting a channel key derived from the schedule id so concurrently
// firing jobs never share a lane.
func cronExecuteFunc(loop *agentloop.Loop) cronsched.ExecuteFunc {
	return func(ctx context.Context, s *store.Schedule) (string, error) {
		res, err := loop.Run(ctx, agentloop.RunRequest{
			ChannelKey: "cron|" + s.ID,
			Source:     "cron",
			Message:    s.Prompt,
		})
		if err != nil {
			return "", err
		}
		return res.Response, nil
	}
}

// Shutdown stops every background component in dependency order.
func (a *App) Shutdown() {
	if a.Heartbeat != nil {
		a.Heartbeat.Stop()
	}
	if a.KeepAlive != nil {
		a.KeepAlive.Stop()
	}
	if a.Cron != nil {
		a.Cron.Shutdown()
	}
	if a.Schedules != nil {
		if err := a.Schedules.Close(); err != nil {
			a.Logger.Warn("shutdown: close schedule store failed", "error", err)
		}
	}
	if a.MemLog != nil {
		if err := a.MemLog.Close(); err != nil {
			a.Logger.Warn("shutdown: close memlog failed", "error", err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.Logger.Warn("shutdown: close backend failed", "error", err)
		}
	}
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if v := os.Getenv("MAMA_LOG_LEVEL"); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
