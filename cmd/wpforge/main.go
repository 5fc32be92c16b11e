package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	wpforgecli "github.com/wpforge-dev/wpforge/internal/cli"
	"github.com/wpforge-dev/wpforge/internal/config"
	"github.com/wpforge-dev/wpforge/internal/knowledge"
	"github.com/wpforge-dev/wpforge/internal/logging"
	"github.com/wpforge-dev/wpforge/internal/pipeline"
	"github.com/wpforge-dev/wpforge/internal/plugin"
	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/state"
	"github.com/wpforge-dev/wpforge/internal/tools"
	"github.com/wpforge-dev/wpforge/internal/tui"
	"github.com/wpforge-dev/wpforge/internal/wpenv"
)

// errRunFailed marks a pipeline run that completed without full success, so
// main can exit 2 instead of the generic 1.
var errRunFailed = errors.New("run did not fully succeed")

type runtimeDeps struct {
	cfg      *config.Config
	log      *zap.Logger
	provider providers.Provider
	model    string
	kb       *knowledge.Base
	history  *state.DB
	stack    *wpenv.Stack
}

func (r *runtimeDeps) Close() {
	if r == nil {
		return
	}
	if r.kb != nil {
		_ = r.kb.Close()
	}
	if r.history != nil {
		_ = r.history.Close()
	}
	if r.log != nil {
		_ = r.log.Sync()
	}
}

func restoreTerminalState() {
	fmt.Fprint(os.Stderr, "\x1b[?25h\x1b[0m")
}

// guidelineSource adapts the knowledge base to the narrow interface the tool
// layer consumes.
type guidelineSource struct {
	base *knowledge.Base
}

func (g guidelineSource) Lookup(ctx context.Context, query string, limit int) ([]tools.GuidelineSnippet, error) {
	snippets, err := g.base.Lookup(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]tools.GuidelineSnippet, 0, len(snippets))
	for _, s := range snippets {
		out = append(out, tools.GuidelineSnippet{Source: s.Source, Content: s.Content})
	}
	return out, nil
}

func bootstrapRuntime(cfg *config.Config, log *zap.Logger) (*runtimeDeps, error) {
	rt := &runtimeDeps{cfg: cfg, log: log}

	provider, bare, err := providers.ForModel(cfg, cfg.Defaults.Model)
	if err != nil {
		return nil, err
	}
	rt.provider = provider
	rt.model = bare

	// Compose bind mounts resolve relative to the compose file, so the
	// plugins directory must be absolute.
	pluginsDir, err := filepath.Abs(cfg.Defaults.OutputDir)
	if err != nil {
		pluginsDir = cfg.Defaults.OutputDir
	}
	rt.stack = wpenv.New(".wpforge", pluginsDir, 0)

	if cfg.Knowledge.Enabled {
		kb, err := knowledge.Open(knowledge.Options{
			Dir:          cfg.Knowledge.Dir,
			OllamaHost:   cfg.Providers.Ollama.Host,
			Model:        cfg.Knowledge.Embedder,
			ChunkSize:    cfg.Knowledge.ChunkSize,
			ChunkOverlap: cfg.Knowledge.ChunkOverlap,
			Log:          log,
		})
		if err != nil {
			log.Warn("knowledge base unavailable, guideline lookups disabled", zap.Error(err))
		} else {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			err = kb.Refresh(refreshCtx)
			cancel()
			if err != nil {
				log.Warn("guideline index refresh failed, guideline lookups disabled", zap.Error(err))
				_ = kb.Close()
			} else {
				rt.kb = kb
			}
		}
	}

	if cfg.History.Enabled {
		db, err := state.Connect(cfg.History.Path)
		if err != nil {
			log.Warn("run history unavailable", zap.Error(err))
		} else {
			rt.history = db
		}
	}

	return rt, nil
}

type runFlags struct {
	model       string
	temperature float64
	maxRetries  int
	playground  bool
	wpCheck     bool
	phpunit     bool
	allTests    bool
	output      string
	noZip       bool
	noHistory   bool
	plain       bool
	verbose     bool
	timeout     time.Duration
}

func newRootCmd() *cobra.Command {
	var flags runFlags

	root := &cobra.Command{
		Use:          "wpforge \"<plugin prompt>\"",
		Short:        "Generate WordPress plugins from a prompt with LLM agents",
		Long:         "wpforge turns a natural-language prompt into a working WordPress plugin:\nspecification, code generation, compliance audit, and testing run as\nseparate model-driven phases with bounded retries.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], flags)
		},
	}

	root.Flags().StringVar(&flags.model, "model", "", "Model to use, e.g. gpt-4o, claude-3-5-sonnet-20241022, ollama/llama3.1 (default from config)")
	root.Flags().Float64Var(&flags.temperature, "temperature", -1, "Sampling temperature for all agents (negative keeps per-agent defaults)")
	root.Flags().IntVar(&flags.maxRetries, "max-retries", 3, "Retries per phase after the first attempt")
	root.Flags().BoolVar(&flags.playground, "playground", false, "Run the headless-browser playground test")
	root.Flags().BoolVar(&flags.wpCheck, "wp-check", false, "Run the WordPress plugin-check audit")
	root.Flags().BoolVar(&flags.phpunit, "phpunit", false, "Run the PHPUnit scaffold test")
	root.Flags().BoolVar(&flags.allTests, "all-tests", false, "Enable playground, wp-check, and phpunit")
	root.Flags().StringVar(&flags.output, "output", "plugins", "Directory generated plugins are written under")
	root.Flags().BoolVar(&flags.noZip, "no-zip", false, "Skip packaging the plugin into a zip archive")
	root.Flags().BoolVar(&flags.noHistory, "no-history", false, "Skip recording this run in the history database")
	root.Flags().BoolVar(&flags.plain, "plain", false, "Disable the TUI and log plain progress lines")
	root.Flags().BoolVar(&flags.verbose, "verbose", false, "Log debug detail to the console")
	root.Flags().DurationVar(&flags.timeout, "timeout", 0, "Abort the whole run after this duration (0 means no limit)")

	root.AddCommand(
		wpforgecli.NewAuthCmd(),
		wpforgecli.NewModelsCmd(),
		wpforgecli.NewRunsCmd(),
		wpforgecli.NewDoctorCmd(),
		wpforgecli.NewConfigCmd(),
	)
	return root
}

func runPipeline(cmd *cobra.Command, prompt string, flags runFlags) error {
	if flags.allTests {
		flags.playground = true
		flags.wpCheck = true
		flags.phpunit = true
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flags.model != "" {
		cfg.Defaults.Model = flags.model
	}
	if cmd.Flags().Changed("max-retries") {
		cfg.Defaults.MaxRetries = flags.maxRetries
	}
	if cmd.Flags().Changed("output") {
		cfg.Defaults.OutputDir = flags.output
	}
	if flags.noHistory {
		cfg.History.Enabled = false
	}

	stdoutIsTTY := term.IsTerminal(int(os.Stdout.Fd()))
	useTUI := !flags.plain && stdoutIsTTY

	log, err := logging.New(logging.Options{Verbose: flags.verbose, Quiet: useTUI})
	if err != nil {
		return err
	}

	rt, err := bootstrapRuntime(cfg, log)
	if err != nil {
		_ = log.Sync()
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, flags.timeout)
		defer cancelTimeout()
	}

	if rt.kb != nil {
		if err := rt.kb.Watch(ctx); err != nil {
			log.Warn("guideline watcher failed to start", zap.Error(err))
		}
	}

	events := make(chan pipeline.RunEvent, 256)
	orch := &pipeline.Orchestrator{
		Options: pipeline.Options{
			Prompt:         prompt,
			OutputDir:      cfg.Defaults.OutputDir,
			MaxRetries:     cfg.Defaults.MaxRetries,
			Temperature:    flags.temperature,
			RunPlayground:  flags.playground,
			RunPluginCheck: flags.wpCheck,
			RunPHPUnit:     flags.phpunit,
			NoZip:          flags.noZip,
		},
		Config:   cfg,
		Provider: rt.provider,
		Model:    rt.model,
		Stack:    rt.stack,
		Backoff:  pipeline.NewBackoff(cfg.Backoff.BaseMillis, cfg.Backoff.MaxMillis, cfg.Backoff.Multiplier),
		Log:      log,
		Events:   events,
	}
	if rt.kb != nil {
		orch.Guidelines = guidelineSource{base: rt.kb}
	}
	if rt.history != nil {
		orch.History = rt.history
	}

	var run *plugin.Run
	var runErr error
	if useTUI {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		run, runErr = tui.RunProgram(runCtx, cancel, orch, events)
	} else {
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for ev := range events {
				logRunEvent(log, ev)
			}
		}()
		run, runErr = orch.Run(ctx)
		<-drained
	}

	if run == nil {
		// Nothing ran; this is a setup problem, not a failed pipeline.
		return runErr
	}

	fmt.Println(pipeline.RenderReport(run, flags.plain || !stdoutIsTTY))

	if run.Status != plugin.StatusSuccess {
		return errRunFailed
	}
	return nil
}

func logRunEvent(log *zap.Logger, ev pipeline.RunEvent) {
	fields := []zap.Field{
		zap.String("phase", string(ev.Phase)),
		zap.String("state", string(ev.State)),
	}
	if ev.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", ev.Attempt))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	if ev.State == pipeline.StateFailed {
		log.Warn("phase update", fields...)
		return
	}
	log.Info("phase update", fields...)
}

func main() {
	err := newRootCmd().Execute()
	restoreTerminalState()
	if err != nil {
		if errors.Is(err, errRunFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
