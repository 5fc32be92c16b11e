package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wpforge-dev/wpforge/internal/agent"
	"github.com/wpforge-dev/wpforge/internal/config"
	"github.com/wpforge-dev/wpforge/internal/plugin"
	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/tools"
	"github.com/wpforge-dev/wpforge/internal/wpenv"
)

var ErrOrchestratorNotReady = errors.New("orchestrator is not initialized")

// Options are the per-run choices, resolved from flags by the CLI.
type Options struct {
	Prompt     string
	OutputDir  string
	MaxRetries int
	// Temperature overrides every role's default when non-negative.
	Temperature    float64
	RunPlayground  bool
	RunPluginCheck bool
	RunPHPUnit     bool
	NoZip          bool
}

// RunRecorder persists a finished run. Satisfied by *state.DB.
type RunRecorder interface {
	SaveRun(ctx context.Context, run *plugin.Run) error
}

// Orchestrator drives one pipeline run through its five phases, strictly in
// order, retrying failed phases within the configured budget.
type Orchestrator struct {
	Options  Options
	Config   *config.Config
	Provider providers.Provider
	Model    string
	// Stack may be nil; docker-backed tools then report unavailable.
	Stack *wpenv.Stack
	// Guidelines may be nil; lookup_guidelines then reports unavailable.
	Guidelines tools.GuidelineSource
	// History may be nil when run recording is disabled.
	History RunRecorder
	Backoff BackoffPolicy
	Log     *zap.Logger
	// Events must be consumed by the caller for the whole run when set.
	// Run closes the channel when it returns.
	Events chan RunEvent
}

func (o *Orchestrator) validate() error {
	if o == nil {
		return ErrOrchestratorNotReady
	}
	if o.Config == nil {
		return errors.New("orchestrator config is not set")
	}
	if o.Provider == nil {
		return errors.New("orchestrator provider is not configured")
	}
	if strings.TrimSpace(o.Model) == "" {
		return errors.New("orchestrator model is empty")
	}
	if strings.TrimSpace(o.Options.Prompt) == "" {
		return errors.New("plugin prompt is empty")
	}
	if strings.TrimSpace(o.Options.OutputDir) == "" {
		return errors.New("output directory is empty")
	}
	return nil
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}

func (o *Orchestrator) emit(ev RunEvent) {
	if o == nil || o.Events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	o.Events <- ev
}

func (o *Orchestrator) closeEvents() {
	if o == nil || o.Events == nil {
		return
	}
	close(o.Events)
}

// Run executes the pipeline once. The returned Run is always renderable,
// even when err is non-nil: partial results up to the failed phase are in
// place, and the Reporting phase has already recorded and packaged whatever
// could be.
func (o *Orchestrator) Run(ctx context.Context) (*plugin.Run, error) {
	defer o.closeEvents()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	run := &plugin.Run{
		ID:            uuid.NewString(),
		Prompt:        o.Options.Prompt,
		Model:         o.Model,
		StartedAt:     time.Now(),
		PhaseAttempts: make(map[string]int),
	}
	log := o.logger().With(zap.String("run_id", run.ID))
	log.Info("run started",
		zap.String("model", o.Model),
		zap.Int("max_retries", o.Options.MaxRetries))

	err := o.execute(ctx, run, log)
	if err != nil {
		run.Status = plugin.StatusFailed
		run.LastError = err.Error()
		var phaseErr *PhaseError
		if errors.As(err, &phaseErr) {
			run.FailedPhase = string(phaseErr.Phase)
		}
		log.Error("run failed", zap.String("phase", run.FailedPhase), zap.Error(err))
	}

	o.reporting(ctx, run, log)
	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)))
	return run, err
}

func (o *Orchestrator) execute(ctx context.Context, run *plugin.Run, log *zap.Logger) error {
	spec, err := o.specificationPhase(ctx, run, log)
	if err != nil {
		o.skipRemaining(PhaseGeneration, PhaseCompliance, PhaseTesting)
		return err
	}
	run.Spec = spec
	root := filepath.Join(o.Options.OutputDir, spec.Slug)
	run.OutputRoot = root

	if err := o.generationPhase(ctx, run, root, log); err != nil {
		o.skipRemaining(PhaseCompliance, PhaseTesting)
		return err
	}
	if err := o.compliancePhase(ctx, run, root, log); err != nil {
		o.skipRemaining(PhaseTesting)
		return err
	}
	return o.testingPhase(ctx, run, root, log)
}

func (o *Orchestrator) skipRemaining(phases ...Phase) {
	for _, phase := range phases {
		o.emit(RunEvent{Phase: phase, State: StateSkipped, Detail: "short-circuited by earlier failure"})
	}
}

// runPhase drives one phase through its attempt budget of max_retries+1,
// backing off between attempts and giving up early on non-retryable errors.
// The attempt closure receives the previous attempt's error so it can
// tighten the instructions after malformed output.
func (o *Orchestrator) runPhase(ctx context.Context, run *plugin.Run, phase Phase, log *zap.Logger, fn func(ctx context.Context, lastErr error) error) error {
	budget := o.Options.MaxRetries + 1
	if budget < 1 {
		budget = 1
	}

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		if err := checkCancelled(ctx); err != nil {
			lastErr = err
			break
		}
		run.PhaseAttempts[string(phase)]++
		o.emit(RunEvent{Phase: phase, State: StateRunning, Attempt: attempt})
		start := time.Now()

		err := fn(ctx, lastErr)
		if err == nil {
			log.Info("phase ok",
				zap.String("phase", string(phase)),
				zap.Int("attempt", attempt),
				zap.Duration("duration", time.Since(start)))
			o.emit(RunEvent{Phase: phase, State: StateOK, Attempt: attempt})
			return nil
		}

		lastErr = err
		log.Warn("phase attempt failed",
			zap.String("phase", string(phase)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if !retryable(err) {
			break
		}
		if attempt < budget {
			delay := o.Backoff.Delay(attempt - 1)
			o.emit(RunEvent{Phase: phase, State: StateRunning, Attempt: attempt,
				Detail: fmt.Sprintf("retrying in %s", delay.Round(time.Millisecond))})
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	attempts := run.PhaseAttempts[string(phase)]
	o.emit(RunEvent{Phase: phase, State: StateFailed, Attempt: attempts, Detail: lastErr.Error()})
	return &PhaseError{
		Phase:     phase,
		Attempts:  attempts,
		Retryable: retryable(lastErr),
		Err:       asCancellation(lastErr),
	}
}

// catalog builds the tool registry for one phase. Each phase gets its own so
// tool events carry the right phase label.
func (o *Orchestrator) catalog(phase Phase, root string) tools.Registry {
	return tools.NewCatalog(tools.Env{
		Root:       root,
		Stack:      o.Stack,
		Timeouts:   o.Config.Timeouts,
		Log:        o.logger(),
		Guidelines: o.Guidelines,
		Emit: func(e tools.Event) {
			o.emit(RunEvent{Phase: phase, State: StateRunning, Detail: toolEventDetail(e)})
		},
	})
}

func (o *Orchestrator) newRunner(def agent.Definition, catalog tools.Registry) *agent.Runner {
	if o.Options.Temperature >= 0 {
		def.Temperature = o.Options.Temperature
	}
	return &agent.Runner{
		Def:       def,
		Provider:  o.Provider,
		Model:     o.Model,
		Catalog:   catalog,
		MaxLoops:  o.Config.Limits.MaxToolLoops,
		MaxTokens: o.Config.Limits.MaxTokens,
		Log:       o.logger(),
		OnEvent: func(e agent.Event) {
			o.emit(RunEvent{Phase: Phase(e.Role), State: StateRunning, Detail: agentEventDetail(e)})
		},
	}
}

// withReminder appends the strict format reminder after malformed output so
// the retry is sampled against tighter instructions.
func withReminder(instructions string, lastErr error) string {
	if agent.IsKind(lastErr, agent.KindMalformedOutput) {
		return instructions + "\n\n" + agent.StrictFormatReminder
	}
	return instructions
}

func (o *Orchestrator) specificationPhase(ctx context.Context, run *plugin.Run, log *zap.Logger) (*plugin.Specification, error) {
	var spec plugin.Specification
	err := o.runPhase(ctx, run, PhaseSpecification, log, func(ctx context.Context, lastErr error) error {
		def, err := agent.DefinitionFor(agent.RoleSpecification)
		if err != nil {
			return err
		}
		instructions, err := def.Instructions(agent.SpecificationData{})
		if err != nil {
			return err
		}

		runner := o.newRunner(def, o.catalog(PhaseSpecification, o.Options.OutputDir))
		out, err := runner.Run(ctx, withReminder(instructions, lastErr), o.Options.Prompt)
		if err != nil {
			return err
		}

		var parsed plugin.Specification
		if err := agent.ParseInto(def.Role, out.Text, &parsed); err != nil {
			return err
		}
		parsed.ApplyDefaults()

		// The slug is derived exactly once, here, and never changes again.
		// The model's suggestion seeds it but Slugify has the final word.
		seed := parsed.Slug
		if strings.TrimSpace(seed) == "" {
			seed = parsed.Name
		}
		parsed.Slug = plugin.Slugify(seed)

		spec = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

func (o *Orchestrator) generationPhase(ctx context.Context, run *plugin.Run, root string, log *zap.Logger) error {
	specJSON, err := json.MarshalIndent(run.Spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode specification: %w", err)
	}

	return o.runPhase(ctx, run, PhaseGeneration, log, func(ctx context.Context, lastErr error) error {
		// Every attempt starts from an empty plugin directory so a retry
		// fully replaces the previous attempt's file set.
		if err := os.RemoveAll(root); err != nil {
			return fmt.Errorf("reset plugin directory: %w", err)
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create plugin directory: %w", err)
		}

		def, err := agent.DefinitionFor(agent.RoleGeneration)
		if err != nil {
			return err
		}
		instructions, err := def.Instructions(agent.GenerationData{
			SpecJSON: string(specJSON),
			Slug:     run.Spec.Slug,
		})
		if err != nil {
			return err
		}

		runner := o.newRunner(def, o.catalog(PhaseGeneration, root))
		out, err := runner.Run(ctx, withReminder(instructions, lastErr), o.Options.Prompt)
		if err != nil {
			return err
		}

		var report plugin.GenerationReport
		if err := agent.ParseInto(def.Role, out.Text, &report); err != nil {
			return err
		}

		// The disk is the ground truth for what was generated, not the
		// agent's file list.
		files, err := collectGeneratedFiles(root)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return &agent.AgentError{
				Kind:    agent.KindMalformedOutput,
				Role:    def.Role,
				Message: "no files were written to the plugin directory",
			}
		}
		run.Files = files
		log.Info("plugin files generated",
			zap.Int("files", len(files)),
			zap.String("summary", firstLine(report.Summary)))
		return nil
	})
}

func (o *Orchestrator) compliancePhase(ctx context.Context, run *plugin.Run, root string, log *zap.Logger) error {
	specJSON, err := json.MarshalIndent(run.Spec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode specification: %w", err)
	}

	return o.runPhase(ctx, run, PhaseCompliance, log, func(ctx context.Context, lastErr error) error {
		def, err := agent.DefinitionFor(agent.RoleCompliance)
		if err != nil {
			return err
		}
		instructions, err := def.Instructions(agent.ComplianceData{
			SpecJSON:       string(specJSON),
			Slug:           run.Spec.Slug,
			RunPluginCheck: o.Options.RunPluginCheck,
		})
		if err != nil {
			return err
		}

		runner := o.newRunner(def, o.catalog(PhaseCompliance, root))
		out, err := runner.Run(ctx, withReminder(instructions, lastErr), "Audit the plugin files now.")
		if err != nil {
			return err
		}

		var report plugin.ComplianceReport
		if err := agent.ParseInto(def.Role, out.Text, &report); err != nil {
			return err
		}
		run.Findings = report.Findings
		if o.Options.RunPluginCheck {
			run.Tests = append(run.Tests, pluginCheckResult(out.Trace))
		}
		log.Info("compliance audit done",
			zap.Bool("passed", report.Passed),
			zap.Int("findings", len(report.Findings)))
		return nil
	})
}

func (o *Orchestrator) testingPhase(ctx context.Context, run *plugin.Run, root string, log *zap.Logger) error {
	return o.runPhase(ctx, run, PhaseTesting, log, func(ctx context.Context, lastErr error) error {
		def, err := agent.DefinitionFor(agent.RoleTesting)
		if err != nil {
			return err
		}
		instructions, err := def.Instructions(agent.TestingData{
			Slug:          run.Spec.Slug,
			RunPlayground: o.Options.RunPlayground,
			RunPHPUnit:    o.Options.RunPHPUnit,
		})
		if err != nil {
			return err
		}

		runner := o.newRunner(def, o.catalog(PhaseTesting, root))
		out, err := runner.Run(ctx, withReminder(instructions, lastErr), "Run the test sequence now.")
		if err != nil {
			return err
		}

		var report plugin.TestingReport
		if err := agent.ParseInto(def.Role, out.Text, &report); err != nil {
			return err
		}
		results := reconcileTests(report.Results, out.Trace, o.Options.RunPlayground, o.Options.RunPHPUnit)
		run.Tests = append(run.Tests, results...)
		log.Info("testing done", zap.Int("tests", len(results)))
		return nil
	})
}

// reporting closes out the run: resolves the overall status, packages the
// archive, and records history. It never fails the run; problems here are
// warnings.
func (o *Orchestrator) reporting(ctx context.Context, run *plugin.Run, log *zap.Logger) {
	o.emit(RunEvent{Phase: PhaseReporting, State: StateRunning})
	run.FinishedAt = time.Now()
	run.Resolve()

	if !o.Options.NoZip && run.Spec != nil && len(run.Files) > 0 && checkCancelled(ctx) == nil {
		o.packageArchive(ctx, run, log)
	}

	if o.History != nil {
		// Recording still happens for cancelled runs; their failed row is
		// part of the history.
		if err := o.History.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("history write failed", zap.Error(err))
		}
	}
	o.emit(RunEvent{Phase: PhaseReporting, State: StateOK, Detail: string(run.Status)})
}

func (o *Orchestrator) packageArchive(ctx context.Context, run *plugin.Run, log *zap.Logger) {
	root := filepath.Join(o.Options.OutputDir, run.Spec.Slug)
	catalog := o.catalog(PhaseReporting, root)
	zipper, found := catalog.Get("create_plugin_zip")
	if !found {
		return
	}
	res, err := zipper.Execute(ctx, map[string]any{"slug": run.Spec.Slug})
	if err != nil || res.Outcome != tools.OutcomeOK {
		log.Warn("packaging failed", zap.Error(err), zap.String("output", res.Output))
		return
	}
	if rel, ok := res.Data["path"].(string); ok {
		run.ArchivePath = filepath.Join(root, filepath.FromSlash(rel))
	}
}

// collectGeneratedFiles reads the plugin directory back as the generated
// file set, in walk order.
func collectGeneratedFiles(root string) ([]plugin.GeneratedFile, error) {
	var files []plugin.GeneratedFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, plugin.GeneratedFile{
			RelativePath: rel,
			Content:      string(content),
			Kind:         plugin.KindForPath(rel),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect generated files: %w", err)
	}
	return files, nil
}
