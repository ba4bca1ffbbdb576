package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"voice2action/internal/domain"
	"voice2action/internal/usecase/multiagent"
)

// Capability tags advertised by the built-in workers.
var (
	UtilityCapabilities = []string{
		"TranscribeVoiceRecording(audioPath)",
		"GetCurrentDateTime()",
	}
	OfficeCapabilities = []string{
		"SetReminder(task, dueDate, reminderDate?)",
		"SendEmail(subject, body)",
		"SendFallbackNotification(message)",
	}
)

// coordinatorSuffix is appended to the coordinator template after the
// catalog is filled in.
const coordinatorSuffix = "\nAlways respond ONLY in minified JSON with this schema: " +
	`{"Action":"DELEGATE|DONE","Agent":"<agent name when delegating>","Task":"<task when delegating>","Summary":"<summary when done>"}. ` +
	"When delegating transcription prefer: TranscribeVoiceRecording(/absolute/path.mp3)."

// CoordinatorInstructions fills the catalog placeholder of template and
// appends the response contract.
func CoordinatorInstructions(template, catalog string) string {
	return strings.ReplaceAll(template, "{{AGENT_CATALOG}}", catalog) + coordinatorSuffix
}

// AgentSpec describes one LLM-backed agent.
type AgentSpec struct {
	Name         string
	Capabilities []string
	Instructions string
	LLM          domain.LLMProvider

	// Tools is nil for the coordinator.
	Tools             domain.ToolExecutor
	Model             string
	MaxTokens         int
	Temperature       float64
	MaxToolIterations int
	ResponseFormat    domain.ResponseFormat
}

// AgentSetConfig configures DefaultAgentSetProvider. Coordinator.Instructions
// is a template containing {{AGENT_CATALOG}}.
type AgentSetConfig struct {
	Coordinator AgentSpec
	Workers     []AgentSpec
	Bus         domain.EventBus
	Logger      *slog.Logger
	Retry       bool
}

// DefaultAgentSetProvider builds a coordinator plus LLM-backed workers.
type DefaultAgentSetProvider struct {
	cfg AgentSetConfig
}

var _ domain.AgentSetProvider = (*DefaultAgentSetProvider)(nil)

func NewDefaultAgentSetProvider(cfg AgentSetConfig) *DefaultAgentSetProvider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DefaultAgentSetProvider{cfg: cfg}
}

// AgentSet builds the agents. The coordinator's instructions list every
// worker with its capabilities.
func (p *DefaultAgentSetProvider) AgentSet(ctx context.Context) (*domain.AgentSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.cfg.Coordinator.LLM == nil {
		return nil, domain.NewDomainError("AgentSetProvider.AgentSet", domain.ErrInvalidInput, "coordinator has no LLM")
	}

	workers := make([]domain.TextAgent, 0, len(p.cfg.Workers))
	for _, spec := range p.cfg.Workers {
		if spec.LLM == nil {
			return nil, domain.NewDomainError("AgentSetProvider.AgentSet", domain.ErrInvalidInput,
				fmt.Sprintf("worker %q has no LLM", spec.Name))
		}
		workers = append(workers, p.newAgent(spec))
	}

	// Building a registry validates worker names the same way the
	// orchestrator will.
	registry, err := multiagent.NewRegistry(workers, p.cfg.Logger)
	if err != nil {
		return nil, err
	}

	coord := p.cfg.Coordinator
	coord.Instructions = CoordinatorInstructions(coord.Instructions, registry.Catalog())
	coord.Tools = nil
	coord.Capabilities = nil
	coord.ResponseFormat = domain.ResponseJSON

	p.cfg.Logger.Debug("agent set built",
		"coordinator", coord.Name,
		"workers", registry.Names(),
	)
	return &domain.AgentSet{
		Coordinator: p.newAgent(coord),
		Workers:     workers,
	}, nil
}

func (p *DefaultAgentSetProvider) newAgent(spec AgentSpec) *ToolAgent {
	var classifier *ErrorClassifier
	if p.cfg.Retry {
		classifier = NewErrorClassifier()
	}
	return NewToolAgent(ToolAgentDeps{
		Name:            spec.Name,
		Capabilities:    spec.Capabilities,
		Instructions:    spec.Instructions,
		LLM:             spec.LLM,
		Tools:           spec.Tools,
		Model:           spec.Model,
		MaxTokens:       spec.MaxTokens,
		Temperature:     spec.Temperature,
		MaxIterations:   spec.MaxToolIterations,
		ResponseFormat:  spec.ResponseFormat,
		Logger:          p.cfg.Logger.With("agent", spec.Name),
		Bus:             p.cfg.Bus,
		ErrorClassifier: classifier,
	})
}

// StaticAgentSetProvider returns a fixed AgentSet.
type StaticAgentSetProvider struct {
	Set *domain.AgentSet
}

func (s StaticAgentSetProvider) AgentSet(context.Context) (*domain.AgentSet, error) {
	if s.Set == nil {
		return nil, domain.NewDomainError("StaticAgentSetProvider.AgentSet", domain.ErrInvalidInput, "no agent set")
	}
	return s.Set, nil
}
