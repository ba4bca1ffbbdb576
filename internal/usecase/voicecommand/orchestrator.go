package voicecommand

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/eventbus"
	"voice2action/internal/usecase/multiagent"
)

// WorkerErrorPolicy decides what happens when a worker call fails.
type WorkerErrorPolicy string

const (
	// PropagateWorkerErrors ends the run and returns the worker's error.
	PropagateWorkerErrors WorkerErrorPolicy = "propagate"
	// RecordWorkerErrors logs a WORKER_ERROR record and lets the coordinator
	// react to it on the next turn.
	RecordWorkerErrors WorkerErrorPolicy = "record"
)

const (
	defaultMaxIterations   = 8
	defaultRepeatThreshold = 3
)

// Options configures an Orchestrator. Zero values select defaults.
type Options struct {
	// MaxIterations caps coordinator turns per run. Default 8.
	MaxIterations int

	// RepeatThreshold is the number of identical consecutive delegations that
	// adds a repetition warning to the coordinator context. Default 3;
	// negative disables the guard.
	RepeatThreshold int

	// Guidance replaces DefaultGuidance in the context prompt.
	Guidance          string
	WorkerErrorPolicy WorkerErrorPolicy

	// Bus receives orchestration and delegation events. Optional.
	Bus    domain.EventBus
	Logger *slog.Logger

	// NewRunID overrides run ID generation. Default: ULID.
	NewRunID func() string
}

// Orchestrator runs the coordinator/worker delegation loop. It holds no
// per-run state, so one Orchestrator may serve concurrent Execute calls.
type Orchestrator struct {
	coordinator     domain.TextAgent
	broker          *multiagent.Broker
	classifier      Classifier
	maxIterations   int
	repeatThreshold int
	guidance        string
	policy          WorkerErrorPolicy
	bus             domain.EventBus
	logger          *slog.Logger
	newRunID        func() string
}

var _ domain.VoiceCommandOrchestrator = (*Orchestrator)(nil)

// New builds an Orchestrator for set. Worker names must be unique ignoring case.
func New(set *domain.AgentSet, opts Options) (*Orchestrator, error) {
	if set == nil || set.Coordinator == nil {
		return nil, domain.NewDomainError("voicecommand.New", domain.ErrInvalidInput, "agent set has no coordinator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := multiagent.NewRegistry(set.Workers, logger)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		coordinator:     set.Coordinator,
		broker:          multiagent.NewBroker(registry, opts.Bus, logger),
		classifier:      NewClassifier(registry.Vocabulary()),
		maxIterations:   opts.MaxIterations,
		repeatThreshold: opts.RepeatThreshold,
		guidance:        opts.Guidance,
		policy:          opts.WorkerErrorPolicy,
		bus:             opts.Bus,
		logger:          logger,
		newRunID:        opts.NewRunID,
	}
	if o.maxIterations <= 0 {
		o.maxIterations = defaultMaxIterations
	}
	if o.repeatThreshold == 0 {
		o.repeatThreshold = defaultRepeatThreshold
	}
	if strings.TrimSpace(o.guidance) == "" {
		o.guidance = DefaultGuidance
	}
	switch o.policy {
	case PropagateWorkerErrors, RecordWorkerErrors:
	case "":
		o.policy = PropagateWorkerErrors
	default:
		return nil, domain.NewDomainError("voicecommand.New", domain.ErrInvalidInput,
			fmt.Sprintf("unknown worker error policy %q", o.policy))
	}
	if o.newRunID == nil {
		o.newRunID = func() string { return ulid.Make().String() }
	}
	return o, nil
}

// Execute processes one voice recording.
//
// A blank path or a path that does not name an existing file fails before the
// coordinator is called. Otherwise the returned result is non-nil and the
// error is nil unless a coordinator call fails, or a worker call fails under
// PropagateWorkerErrors. Reaching the iteration ceiling and cancellation are
// not errors: the partial result has a nil Summary.
func (o *Orchestrator) Execute(ctx context.Context, audioPath string) (*domain.OrchestrationResult, error) {
	const op = "Orchestrator.Execute"

	absPath, err := validateAudioPath(audioPath)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}

	runID := o.newRunID()
	log := o.logger.With("run_id", runID)

	ctx, span := tracer.StartSpan(ctx, "voicecommand.execute")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("run.id", runID),
		tracer.StringAttr("audio.path", absPath),
		tracer.IntAttr("run.max_iterations", o.maxIterations),
	)

	res := newResultBuilder(runID, audioPath)
	guard := newRepeatGuard(o.repeatThreshold)
	prompt := SeedPrompt(absPath)

	log.Info("voice command started", "audio", absPath, "workers", o.broker.Registry().Len())
	eventbus.Emit(ctx, o.bus, domain.EventOrchestrationStarted, runID, map[string]any{
		"audio_path": absPath,
		"workers":    o.broker.Registry().Names(),
	})

	for turn := 1; turn <= o.maxIterations; turn++ {
		if ctx.Err() != nil {
			return o.cancelled(ctx, span, log, res, turn), nil
		}

		next, done, err := o.turn(ctx, log, res, guard, turn, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(ctx, span, log, res, turn), nil
			}
			tracer.RecordError(span, err)
			log.Error("voice command failed", "turn", turn, "error", err, "code", domain.ErrorCodeOf(err))
			return nil, domain.WrapOp(op, err)
		}
		if done {
			result := res.snapshot()
			span.SetAttributes(tracer.IntAttr("run.turns", turn), tracer.BoolAttr("run.completed", true))
			tracer.SetOK(span)
			log.Info("voice command completed", "turns", turn, "actions", len(result.Actions))
			eventbus.Emit(ctx, o.bus, domain.EventOrchestrationCompleted, runID, map[string]any{
				"turns":   turn,
				"summary": *result.Summary,
			})
			return result, nil
		}
		prompt = next
	}

	result := res.snapshot()
	span.SetAttributes(tracer.IntAttr("run.turns", o.maxIterations), tracer.BoolAttr("run.completed", false))
	log.Warn("voice command aborted at iteration ceiling", "turns", o.maxIterations, "actions", len(result.Actions))
	eventbus.Emit(ctx, o.bus, domain.EventOrchestrationAborted, runID, map[string]any{
		"turns": o.maxIterations,
	})
	return result, nil
}

// turn runs one coordinator call and, for a delegation, one worker call. It
// returns the next coordinator prompt, or done when the coordinator finished.
func (o *Orchestrator) turn(ctx context.Context, log *slog.Logger, res *resultBuilder, guard *repeatGuard, turn int, prompt string) (string, bool, error) {
	ctx, span := tracer.StartSpan(ctx, "voicecommand.turn")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("turn", turn))

	raw, err := o.coordinator.Run(ctx, prompt)
	if err != nil {
		tracer.RecordError(span, err)
		return "", false, fmt.Errorf("coordinator %s: %w", o.coordinator.Name(), err)
	}
	res.append(domain.AgentActionRecord{
		Agent:     o.coordinator.Name(),
		Action:    domain.ActionPlan,
		RawResult: raw,
	})

	msg, kind := ParseCoordinatorMessage(raw)
	repeated := guard.observe(msg, kind)
	span.SetAttributes(tracer.StringAttr("decision", kind.String()))
	eventbus.Emit(ctx, o.bus, domain.EventOrchestrationPlan, res.runID, map[string]any{
		"turn":     turn,
		"decision": kind.String(),
		"agent":    msg.Agent,
		"task":     msg.Task,
	})

	switch kind {
	case domain.DecisionDone:
		res.finish(msg.Summary)
		return "", true, nil
	case domain.DecisionMalformed:
		log.Warn("malformed coordinator response", "turn", turn, "error", domain.ErrMalformedPlan, "raw", truncate(raw, 200))
		return CorrectivePrompt, false, nil
	}

	agent, output, found, err := o.delegate(ctx, res.runID, msg)
	if err != nil {
		tracer.RecordError(span, err)
		return "", false, err
	}
	res.append(domain.AgentActionRecord{
		Agent:     agent,
		Action:    o.classifier.Classify(msg.Task),
		RawResult: output,
	})

	if found && !res.hasTranscript() {
		if text, ok := ExtractTranscript(msg.Task, output); ok {
			res.captureTranscript(text)
			log.Info("transcript captured", "turn", turn, "agent", agent, "chars", len(text))
		}
	}

	warning := ""
	if repeated {
		warning = repetitionWarning(agent, guard.streak)
		log.Warn("coordinator is repeating itself", "turn", turn, "agent", agent, "streak", guard.streak)
	}
	return BuildContextPrompt(res.transcript, res.actions, o.guidance, warning), false, nil
}

// delegate hands msg.Task to the addressed worker. found is false for unknown
// agents and for worker failures recorded under RecordWorkerErrors.
func (o *Orchestrator) delegate(ctx context.Context, runID string, msg domain.CoordinatorMessage) (agent, output string, found bool, err error) {
	resp, err := o.broker.Delegate(ctx, multiagent.DelegateRequest{
		RunID:     runID,
		FromAgent: o.coordinator.Name(),
		ToAgent:   msg.Agent,
		Task:      msg.Task,
	})
	if err == nil {
		return resp.Agent, resp.Content, resp.Found, nil
	}
	if o.policy == PropagateWorkerErrors || ctx.Err() != nil {
		return "", "", false, err
	}

	agent, cause := workerFailure(err, msg.Agent)
	o.logger.Warn("worker failed, recording error", "run_id", runID, "agent", agent, "error", err)
	return agent, domain.WorkerErrorPrefix + agent + ":" + cause, false, nil
}

// workerFailure recovers the worker name and the worker's own error message
// from a Broker.Delegate failure.
func workerFailure(err error, requested string) (agent, cause string) {
	agent, cause = requested, err.Error()
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return agent, cause
	}
	if de.Detail != "" {
		agent = de.Detail
	}
	if multi, ok := de.Err.(interface{ Unwrap() []error }); ok {
		if errs := multi.Unwrap(); len(errs) > 0 {
			cause = errs[len(errs)-1].Error()
		}
	}
	return agent, cause
}

func (o *Orchestrator) cancelled(ctx context.Context, span trace.Span, log *slog.Logger, res *resultBuilder, turn int) *domain.OrchestrationResult {
	result := res.snapshot()
	span.SetAttributes(tracer.IntAttr("run.turns", turn-1), tracer.BoolAttr("run.cancelled", true))
	log.Info("voice command cancelled", "turn", turn, "actions", len(result.Actions), "reason", context.Cause(ctx))
	eventbus.Emit(ctx, o.bus, domain.EventOrchestrationCancelled, res.runID, map[string]any{
		"turn":    turn,
		"actions": len(result.Actions),
	})
	return result
}

// validateAudioPath checks that path names an existing regular file and
// returns its absolute form.
func validateAudioPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", domain.NewDomainError("validateAudioPath", domain.ErrInvalidInput, "audio path is blank")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.NewDomainError("validateAudioPath", domain.ErrInvalidInput, err.Error())
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NewDomainError("validateAudioPath", domain.ErrAudioNotFound, abs)
		}
		return "", fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		return "", domain.NewDomainError("validateAudioPath", domain.ErrInvalidInput, abs+" is a directory")
	}
	return abs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
