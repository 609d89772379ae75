// Package main provides the CLI entry point for tandem, a dual-agent
// orchestrator that drives an instructor and a worker LLM agent through
// interleaved streaming turns to accomplish a coding task in a working
// directory.
//
// # Basic Usage
//
// Start a session with an initial instruction:
//
//	tandem --work-dir ./proj "Add a --verbose flag to the CLI"
//
// Resume the latest session for a working directory:
//
//	tandem --work-dir ./proj --continue
//
// List stored sessions:
//
//	tandem sessions
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - ANTHROPIC_BASE_URL: Override the Anthropic endpoint
//   - DASHSCOPE_API_KEY: DashScope API key for Qwen models
//   - DASHSCOPE_BASE_URL: Override the DashScope compatible-mode endpoint
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/tandem/internal/agent"
	"github.com/haasonsaas/tandem/internal/agent/providers"
	"github.com/haasonsaas/tandem/internal/config"
	"github.com/haasonsaas/tandem/internal/display"
	"github.com/haasonsaas/tandem/internal/orchestrator"
	"github.com/haasonsaas/tandem/internal/session"
	"github.com/haasonsaas/tandem/internal/tools"
	"github.com/haasonsaas/tandem/internal/tools/files"
	"github.com/haasonsaas/tandem/internal/tools/gittools"
	"github.com/haasonsaas/tandem/internal/tools/search"
	"github.com/haasonsaas/tandem/internal/tools/shell"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type runOptions struct {
	configPath      string
	workDir         string
	maxRounds       int
	instructorModel string
	workerModel     string
	noThinking      bool
	thinkingBudget  int
	continueLatest  bool
	resume          string
	debug           bool
	mockSeed        int64
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "tandem [instruction]",
		Short: "Dual-agent LLM orchestrator for coding tasks",
		Long: "tandem couples an instructor agent (planner, reviewer, permission authority)\n" +
			"with a worker agent (file and shell tool executor) and drives them through\n" +
			"interleaved streaming turns until the instructor declares the task done.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial := ""
			if len(args) == 1 {
				initial = args[0]
			}
			return runSession(cmd, opts, initial)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.tandem/config.yaml)")
	flags.StringVar(&opts.workDir, "work-dir", ".", "working directory all tool calls resolve against")
	flags.IntVar(&opts.maxRounds, "max-rounds", 0, "initial round budget (0 = unbounded)")
	flags.StringVar(&opts.instructorModel, "instructor-model", "", "model for the instructor")
	flags.StringVar(&opts.workerModel, "worker-model", "", "default model for the worker")
	flags.BoolVar(&opts.noThinking, "no-thinking", false, "disable extended thinking for the instructor")
	flags.IntVar(&opts.thinkingBudget, "thinking-budget", 0, "thinking budget in tokens (0 = provider default)")
	flags.BoolVar(&opts.continueLatest, "continue", false, "resume the most recent session for this work dir")
	flags.StringVar(&opts.resume, "resume", "", "resume a session by id (empty value = latest overall)")
	flags.Lookup("resume").NoOptDefVal = "latest"
	flags.BoolVar(&opts.debug, "debug", false, "replace providers with the deterministic mock")
	flags.Int64Var(&opts.mockSeed, "mock-seed", 0, "seed for the debug mock provider")

	rootCmd.AddCommand(buildSessionsCmd(opts))
	return rootCmd
}

func buildSessionsCmd(opts *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			summaries, err := session.List(cfg.Session.Dir)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					s.SessionID, s.LastUpdatedAt.Format(time.RFC3339), s.WorkDir)
			}
			return nil
		},
	}
}

func runSession(cmd *cobra.Command, opts *runOptions, initial string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)

	workDir, err := filepath.Abs(opts.workDir)
	if err != nil {
		return fmt.Errorf("resolve work dir: %w", err)
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		return fmt.Errorf("work dir %s does not exist or is not a directory", opts.workDir)
	}

	instructorModel := opts.instructorModel
	if instructorModel == "" {
		instructorModel = cfg.Models.Instructor
	}
	workerModel := opts.workerModel
	if workerModel == "" {
		workerModel = cfg.Models.Worker
	}
	thinking := !opts.noThinking
	thinkingBudget := opts.thinkingBudget
	if thinkingBudget == 0 {
		thinkingBudget = cfg.Models.ThinkingBudgetTokens
	}

	instructorFactory := providers.NewFactory(providers.FactoryConfig{
		AnthropicAPIKey:  cfg.Providers.Anthropic.APIKey,
		AnthropicBaseURL: cfg.Providers.Anthropic.BaseURL,
		QwenAPIKey:       cfg.Providers.Qwen.APIKey,
		QwenBaseURL:      cfg.Providers.Qwen.BaseURL,
		MaxTokens:        cfg.Models.MaxTokens,
		Debug:            opts.debug,
		MockRole:         "instructor",
		MockSeed:         opts.mockSeed,
	})
	workerFactory := providers.NewFactory(providers.FactoryConfig{
		AnthropicAPIKey:  cfg.Providers.Anthropic.APIKey,
		AnthropicBaseURL: cfg.Providers.Anthropic.BaseURL,
		QwenAPIKey:       cfg.Providers.Qwen.APIKey,
		QwenBaseURL:      cfg.Providers.Qwen.BaseURL,
		MaxTokens:        cfg.Models.MaxTokens,
		Debug:            opts.debug,
		MockRole:         "worker",
		MockSeed:         opts.mockSeed,
	})

	instructorExecutor, worker, err := buildAgents(buildConfig{
		workDir:       workDir,
		workerFactory: workerFactory,
		maxTokens:     cfg.Models.MaxTokens,
	})
	if err != nil {
		return err
	}

	instructor := agent.NewDriver(agent.Options{
		Name:                 "instructor",
		System:               instructorSystem(initial),
		Factory:              instructorFactory,
		Executor:             instructorExecutor,
		MaxTokens:            cfg.Models.MaxTokens,
		EnableThinking:       thinking,
		ThinkingBudgetTokens: thinkingBudget,
	})

	// The compaction and reset meta-tools need the worker driver, which in
	// turn needs its executor; register them now that both exist.
	if err := registerWorkerMetaTools(instructorExecutor, worker, workerModel); err != nil {
		return err
	}

	sink := display.NewConsole(os.Stdout)
	sink.Status("tandem %s — instructor: %s, worker: %s, work dir: %s",
		version, instructorModel, workerModel, workDir)

	var store *session.Store
	var resumed *session.State
	store, resumed, err = openSession(cfg.Session.Dir, workDir, opts)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Instructor:      instructor,
		Worker:          worker,
		InstructorModel: instructorModel,
		WorkerModel:     workerModel,
		Display:         sink,
		Store:           store,
		WorkDir:         workDir,
		ConfigSnapshot: map[string]any{
			"instructor_model": instructorModel,
			"worker_model":     workerModel,
			"thinking":         thinking,
		},
		MaxRounds: opts.maxRounds,
	})
	if resumed != nil {
		orch.Restore(resumed)
	}

	return orch.Run(cmd.Context(), initial)
}

type buildConfig struct {
	workDir       string
	workerFactory agent.ProviderFactory
	maxTokens     int
}

// buildAgents wires the tool set: the worker gets the file, search, git-read
// and shell tools by default and can never hold git_write; the instructor
// gets everything plus the meta-tools.
func buildAgents(bc buildConfig) (instructorExec *tools.Executor, worker *agent.Driver, err error) {
	fileCfg := files.Config{WorkDir: bc.workDir}
	searchCfg := search.Config{WorkDir: bc.workDir}
	gitCfg := gittools.Config{WorkDir: bc.workDir}
	shellCfg := shell.Config{WorkDir: bc.workDir}

	workerExec := tools.NewExecutor(tools.ExecutorOptions{
		AgentName:      "worker",
		OtherAgentName: "instructor",
		Forbidden:      []string{"git_write"},
	})
	instructorExec = tools.NewExecutor(tools.ExecutorOptions{
		AgentName:      "instructor",
		OtherAgentName: "worker",
	})

	shared := []agent.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		search.NewGlobTool(searchCfg),
		search.NewGrepTool(searchCfg),
		gittools.NewReadTool(gitCfg),
		shell.New(shellCfg),
	}
	for _, t := range shared {
		if err := workerExec.RegisterAllowed(t); err != nil {
			return nil, nil, err
		}
		if err := instructorExec.RegisterAllowed(t); err != nil {
			return nil, nil, err
		}
	}
	if err := instructorExec.RegisterAllowed(gittools.NewWriteTool(gitCfg)); err != nil {
		return nil, nil, err
	}

	worker = agent.NewDriver(agent.Options{
		Name:                 "worker",
		System:               workerSystem,
		Factory:              bc.workerFactory,
		Executor:             workerExec,
		MaxTokens:            bc.maxTokens,
		RecoverContextLength: true,
	})

	// grant/revoke act on the worker's executor and can be registered now.
	if err := instructorExec.RegisterAllowed(tools.NewGrantTool(workerExec)); err != nil {
		return nil, nil, err
	}
	if err := instructorExec.RegisterAllowed(tools.NewRevokeTool(workerExec)); err != nil {
		return nil, nil, err
	}
	return instructorExec, worker, nil
}

func registerWorkerMetaTools(instructorExec *tools.Executor, worker *agent.Driver, workerModel string) error {
	if err := instructorExec.RegisterAllowed(tools.NewCompactWorkerTool(worker, workerModel)); err != nil {
		return err
	}
	return instructorExec.RegisterAllowed(tools.NewResetWorkerTool(worker))
}

// openSession sets up persistence, replaying an earlier journal when
// --continue or --resume asks for it.
func openSession(dir, workDir string, opts *runOptions) (*session.Store, *session.State, error) {
	resumeID := ""
	switch {
	case opts.continueLatest:
		id, err := session.LatestForWorkDir(dir, workDir)
		if err != nil {
			return nil, nil, err
		}
		if id == "" {
			return nil, nil, fmt.Errorf("no stored session for %s", workDir)
		}
		resumeID = id
	case opts.resume == "latest":
		id, err := session.Current(dir)
		if err != nil {
			return nil, nil, err
		}
		if id == "" {
			return nil, nil, fmt.Errorf("no stored sessions to resume")
		}
		resumeID = id
	case opts.resume != "":
		resumeID = opts.resume
	}

	if resumeID == "" {
		store, err := session.Open(dir)
		return store, nil, err
	}

	state, err := session.Replay(dir, resumeID)
	if err != nil {
		return nil, nil, fmt.Errorf("resume session %s: %w", resumeID, err)
	}
	store, err := session.OpenExisting(dir, resumeID, len(state.InstructorMessages))
	if err != nil {
		return nil, nil, err
	}
	return store, state, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
