package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/agent"
	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/config"
	"github.com/arclabs/arc/internal/escalation"
	"github.com/arclabs/arc/internal/identity"
	"github.com/arclabs/arc/internal/kernel"
	"github.com/arclabs/arc/internal/memory"
	"github.com/arclabs/arc/internal/notify"
	"github.com/arclabs/arc/internal/platform"
	"github.com/arclabs/arc/internal/providers"
	"github.com/arclabs/arc/internal/scheduler"
	"github.com/arclabs/arc/internal/security"
	"github.com/arclabs/arc/internal/skills"
	"github.com/arclabs/arc/internal/tracing"
)

func chatCmd() *cobra.Command {
	var mock bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Run: func(cmd *cobra.Command, args []string) {
			runChat(mock)
		},
	}
	cmd.Flags().BoolVar(&mock, "mock", false, "use the scripted mock provider (no LLM required)")
	return cmd
}

func fatal(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadChatConfig resolves the layered config, refusing to start when
// the user never ran `arc init` and no project config exists.
func loadChatConfig() *config.Config {
	if cfgFile != "" {
		cfg, err := config.LoadFile(cfgFile)
		fatal(err)
		return cfg
	}
	_, userErr := os.Stat(config.UserConfigPath())
	_, projErr := os.Stat("arc.toml")
	if os.IsNotExist(userErr) && os.IsNotExist(projErr) {
		fmt.Fprintln(os.Stderr, "No configuration found — run `arc init` first.")
		os.Exit(1)
	}
	cfg, err := config.Load()
	fatal(err)
	return cfg
}

func runChat(useMock bool) {
	logger := setupLogging()
	cfg := loadChatConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceShutdown, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		traceShutdown = func(context.Context) error { return nil }
	}
	defer traceShutdown(context.Background())

	k := kernel.New(cfg, logger)
	events := k.Bus

	eventLog := bus.NewEventLogger(filepath.Join(config.Dir(), "logs"))
	defer eventLog.Close()
	events.Use(eventLog.Middleware())

	costs := bus.NewCostTracker(
		cfg.Cost.InputPerMillion/1e6,
		cfg.Cost.OutputPerMillion/1e6,
	)
	events.Use(costs.Middleware())

	var llm providers.Provider
	if useMock {
		llm = providers.NewMock(providers.TextScript("(mock) Ready when you are."))
	} else {
		llm = providers.NewOllama(providers.OllamaOptions{
			BaseURL:         cfg.LLM.BaseURL,
			Model:           cfg.LLM.Model,
			ContextWindow:   cfg.LLM.ContextWindow,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
			Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
	}
	defer llm.Close()
	k.Registry.Register("llm", llm.Name(), llm)
	k.Registry.SetDefault("llm", llm.Name())

	persona, err := identity.Load(cfg.Identity.Path)
	fatal(err)

	soft := skills.NewSoftSkills(filepath.Join(config.Dir(), "skills"), logger)
	if err := soft.Load(); err != nil {
		logger.Warn("soft skills unavailable", "error", err)
	}
	// Re-read on every compose so the fsnotify watcher's reloads reach
	// the next turn without a restart.
	systemPrompt := func() string {
		s := persona
		if content := soft.Content(); content != "" {
			s += "\n\n## Skills\n" + content
		}
		return s
	}

	approvals := security.NewApprovalFlow(events,
		time.Duration(cfg.Agent.ApprovalTimeoutSeconds)*time.Second)
	secEngine, err := security.NewEngine(cfg.Security, events, approvals, logger)
	fatal(err)

	escalations := escalation.New(events,
		time.Duration(cfg.Agent.EscalationTimeoutSeconds)*time.Second, logger)

	skillMgr := skills.NewManager(logger)
	workspace, err := os.Getwd()
	fatal(err)
	fatal(skillMgr.Register(ctx, skills.NewFilesystemSkill(workspace, true), nil))
	shellDir := cfg.Shell.WorkingDir
	if shellDir == "" {
		shellDir = workspace
	}
	fatal(skillMgr.Register(ctx, skills.NewShellSkill(shellDir,
		time.Duration(cfg.Shell.TimeoutSeconds)*time.Second), nil))

	var store scheduler.Store
	if cfg.Scheduler.Enabled {
		switch cfg.Scheduler.Store {
		case "postgres":
			store, err = scheduler.NewPostgresStore(ctx, cfg.Scheduler.PostgresDSN)
		default:
			store, err = scheduler.NewSQLiteStore(cfg.Scheduler.DBPath)
		}
		fatal(err)
		fatal(store.Init(ctx))
		defer store.Close()
		fatal(skillMgr.Register(ctx, skills.NewSchedulerSkill(store), nil))
	}

	cliCh := notify.NewCLIChannel(0)
	router := notify.NewRouter(events, logger,
		cliCh,
		notify.NewFileChannel(filepath.Join(config.Dir(), "notifications.log")),
	)
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram channel unavailable", "error", err)
		} else {
			router.AddChannel(tg)
		}
	}
	if cfg.DiscordEnabled() {
		dc, err := notify.NewDiscordChannel(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			logger.Warn("discord channel unavailable", "error", err)
		} else {
			router.AddChannel(dc)
		}
	}
	notifyFn := func(ctx context.Context, jobID, jobName, content string) {
		router.Dispatch(ctx, notify.Notification{JobID: jobID, JobName: jobName, Content: content})
	}

	registry := agent.NewRegistry(logger)

	workerLog, err := agent.NewWorkerLog(filepath.Join(config.Dir(), "logs", "workers.log"), logger)
	if err != nil {
		logger.Warn("worker log unavailable", "error", err)
	} else {
		workerLog.Attach(events)
		defer workerLog.Close()
	}

	var memMgr memory.Manager
	if cfg.Memory.Enabled {
		logger.Warn("memory.enabled is set but no memory backend is bundled; running without long-term memory")
	}

	budget := cfg.LLM.ContextWindow - cfg.LLM.MaxOutputTokens
	newLoop := func(agentID string, sec *security.Engine, excluded []string, maxIter int) *agent.Loop {
		composer := memory.NewComposer(llm.CountTokens, budget, cfg.Agent.RecentWindow, memMgr, logger)
		composer.SetSystemPromptSource(systemPrompt)
		return agent.New(agent.Deps{
			LLM:      llm,
			Skills:   skillMgr,
			Security: sec,
			Session:  memory.NewSession(systemPrompt()),
			Composer: composer,
			Memory:   memMgr,
			Events:   events,
			Logger:   logger,
			Spawn:    k.Spawn,
		}, agent.Config{
			AgentID:        agentID,
			MaxIterations:  maxIter,
			Temperature:    cfg.Agent.Temperature,
			RecentWindow:   cfg.Agent.RecentWindow,
			ExcludedSkills: excluded,
		})
	}

	// Background agents have no terminal, so they run permissive and
	// never park on an approval prompt. Only the main loop asks.
	permissive := security.NewPermissive(events)
	workerRun := agent.NewWorkerRunner(func(params skills.WorkerRunParams) (*agent.Loop, error) {
		return newLoop("worker:"+params.TaskName, permissive, params.ExcludedSkills, params.MaxIterations), nil
	}, logger)
	fatal(skillMgr.Register(ctx,
		skills.NewWorkerSkill(events, skillMgr, workerRun, registry, notifyFn, logger), nil))

	var schedEngine *scheduler.Engine
	if store != nil {
		runJob := agent.NewJobRunner(llm, workerRun, cfg.Agent.MaxIterations, skills.DefaultWorkerTimeout)
		schedEngine = scheduler.NewEngine(store, events, runJob, notifyFn,
			time.Duration(cfg.Scheduler.PollIntervalSeconds)*time.Second, logger)
	}

	k.Start(ctx)
	k.Spawn("soft_skill_watch", func(ctx context.Context) {
		if err := soft.Watch(ctx); err != nil {
			logger.Warn("soft skill watcher stopped", "error", err)
		}
	})
	if schedEngine != nil {
		k.Spawn("scheduler", schedEngine.Run)
	}

	mainLoop := newLoop("main", secEngine, nil, cfg.Agent.MaxIterations)

	session := platform.NewInteractive(platform.InteractiveOptions{
		In:          os.Stdin,
		Out:         os.Stdout,
		Turn:        mainLoop.Run,
		Events:      events,
		Approvals:   approvals,
		Escalations: escalations,
		Pending:     cliCh,
		Commands:    slashCommands(cfg, mainLoop, skillMgr, secEngine, costs, store, registry, memMgr),
		Logger:      logger,
	})

	fmt.Printf("%s ready — model %s. Type /help for commands, /exit to leave.\n",
		cfg.Agent.Name, llm.ModelInfo().Name)
	if err := session.Start(ctx); err != nil {
		logger.Warn("session ended with error", "error", err)
	}

	registry.ShutdownAll(10 * time.Second)
	skillMgr.ShutdownAll(context.Background())
	if schedEngine != nil {
		schedEngine.Wait()
	}
	k.Stop(context.Background())
}

// slashCommands builds the interactive command table.
func slashCommands(
	cfg *config.Config,
	mainLoop *agent.Loop,
	skillMgr *skills.Manager,
	secEngine *security.Engine,
	costs *bus.CostTracker,
	store scheduler.Store,
	registry *agent.Registry,
	memMgr memory.Manager,
) map[string]func(ctx context.Context, args string) string {
	return map[string]func(ctx context.Context, args string) string{
		"cost": func(ctx context.Context, args string) string {
			s := costs.Summary()
			return fmt.Sprintf("Requests: %d\nInput tokens: %d\nOutput tokens: %d\nTotal: $%.4f",
				s.Requests, s.InputTokens, s.OutputTokens, s.CostUSD)
		},
		"skills": func(ctx context.Context, args string) string {
			var b strings.Builder
			for _, m := range skillMgr.Manifests() {
				state := "registered"
				if skillMgr.IsActivated(m.Name) {
					state = "active"
				}
				fmt.Fprintf(&b, "%s v%s (%s) — %d tool(s)\n", m.Name, m.Version, state, len(m.Tools))
			}
			if b.Len() == 0 {
				return "No skills registered."
			}
			return strings.TrimRight(b.String(), "\n")
		},
		"memory": func(ctx context.Context, args string) string {
			if memMgr == nil {
				return fmt.Sprintf("Long-term memory: disabled\nSession messages: %d",
					mainLoop.Session().Len())
			}
			core, err := memMgr.CoreContext(ctx)
			if err != nil {
				return fmt.Sprintf("Memory error: %v", err)
			}
			if core == "" {
				core = "(nothing yet)"
			}
			return "What I know about you:\n" + core
		},
		"jobs": func(ctx context.Context, args string) string {
			if store == nil {
				return "Scheduler is disabled."
			}
			if name, ok := strings.CutPrefix(args, "cancel "); ok {
				name = strings.TrimSpace(name)
				job, err := store.GetByName(ctx, name)
				if err != nil {
					return fmt.Sprintf("Cannot cancel %q: %v", name, err)
				}
				if err := store.Delete(ctx, job.ID); err != nil {
					return fmt.Sprintf("Cannot cancel %q: %v", name, err)
				}
				return fmt.Sprintf("Cancelled job %q.", name)
			}
			jobs, err := store.GetAll(ctx, true)
			if err != nil {
				return fmt.Sprintf("Scheduler error: %v", err)
			}
			if len(jobs) == 0 {
				return "No scheduled jobs."
			}
			var b strings.Builder
			for _, j := range jobs {
				fmt.Fprintf(&b, "%s — %s, next run %s\n",
					j.Name, j.Trigger.Describe(),
					time.Unix(j.NextRun, 0).Format("2006-01-02 15:04"))
			}
			return strings.TrimRight(b.String(), "\n")
		},
		"perms": func(ctx context.Context, args string) string {
			remembered := secEngine.RememberedDecisions()
			var b strings.Builder
			fmt.Fprintf(&b, "auto_allow: %s\n", strings.Join(cfg.Security.AutoAllow, ", "))
			fmt.Fprintf(&b, "always_ask: %s\n", strings.Join(cfg.Security.AlwaysAsk, ", "))
			fmt.Fprintf(&b, "never_allow: %s\n", strings.Join(cfg.Security.NeverAllow, ", "))
			if len(remembered) == 0 {
				b.WriteString("remembered: (none)")
			} else {
				b.WriteString("remembered:\n  " + strings.Join(remembered, "\n  "))
			}
			return b.String()
		},
		"workers": func(ctx context.Context, args string) string {
			running := registry.RunningWorkers()
			if len(running) == 0 {
				return "No background workers running."
			}
			return "Running:\n  " + strings.Join(running, "\n  ")
		},
		"clear": func(ctx context.Context, args string) string {
			mainLoop.Session().Clear()
			return "Conversation cleared."
		},
	}
}
