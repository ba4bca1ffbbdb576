package main

import (
	"context"
	"fmt"

	"voice2action/internal/adapter/llm"
	"voice2action/internal/adapter/prompt"
	"voice2action/internal/adapter/tool"
	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
	"voice2action/internal/usecase"
	"voice2action/internal/usecase/emailflow"
	"voice2action/internal/usecase/voicecommand"
)

// AgentComponents holds the coordinator, its workers and the orchestrator.
type AgentComponents struct {
	Prompts      *prompt.Library
	LLMRegistry  *llm.Registry
	Set          *domain.AgentSet
	Orchestrator *voicecommand.Orchestrator
}

func utilityTools(svc *ServiceComponents, infra *InfraComponents) []domain.Tool {
	transcribe := tool.NewTranscribeTool(svc.Transcriber, infra.Logger)
	if svc.Sandbox != nil {
		transcribe.WithPathGuard(svc.Sandbox)
	}
	return []domain.Tool{
		transcribe,
		tool.NewDateTimeTool(svc.DateTime, infra.Logger),
	}
}

func officeTools(svc *ServiceComponents, infra *InfraComponents) []domain.Tool {
	return []domain.Tool{
		tool.NewReminderTool(svc.Reminders, svc.Location, infra.Logger),
		tool.NewEmailTool(svc.Email, infra.Logger),
		tool.NewFallbackTool(svc.Email, infra.Bus, infra.Logger),
	}
}

// initAgents builds the LLM providers, the agent set and the orchestrator.
// Workers use tools from configured remote MCP servers when any are
// attached to them, and the in-process tools otherwise.
// Returns components, cleanup function, and any error
func initAgents(ctx context.Context, cfg *config.Config, infra *InfraComponents, svc *ServiceComponents) (*AgentComponents, func(), error) {
	log := infra.Logger
	cleanup := func() {}

	prompts, err := prompt.Load(cfg.Prompts.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("prompts: %w", err)
	}
	registry, err := llm.NewRegistryFromConfig(ctx, cfg.LLM, log)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: %w", err)
	}

	var bridge *tool.MCPBridge
	if len(cfg.MCP.Servers) > 0 {
		bridge, err = tool.NewMCPBridge(ctx, cfg.MCP.Servers, log)
		if err != nil {
			return nil, nil, fmt.Errorf("mcp bridge: %w", err)
		}
		cleanup = bridge.Close
	}
	fail := func(err error) (*AgentComponents, func(), error) {
		cleanup()
		return nil, nil, err
	}

	coordinator, err := agentSpec(cfg, cfg.Agents.Coordinator, prompts, prompt.Coordinator, registry, infra)
	if err != nil {
		return fail(err)
	}

	workers := make([]usecase.AgentSpec, 0, 2)
	for _, w := range []struct {
		cfg      config.AgentConfig
		template string
		caps     []string
		local    []domain.Tool
	}{
		{cfg.Agents.Utility, prompt.Utility, usecase.UtilityCapabilities, utilityTools(svc, infra)},
		{cfg.Agents.Office, prompt.OfficeAutomation, usecase.OfficeCapabilities, officeTools(svc, infra)},
	} {
		spec, err := agentSpec(cfg, w.cfg, prompts, w.template, registry, infra)
		if err != nil {
			return fail(err)
		}
		tools := w.local
		if bridge != nil {
			if remote := bridge.ToolsFor(w.cfg.Name); len(remote) > 0 {
				log.Info("worker uses remote tools", "worker", w.cfg.Name, "tools", len(remote))
				tools = remote
			}
		}
		reg := tool.NewRegistry(log)
		if err := reg.Register(tools...); err != nil {
			return fail(fmt.Errorf("worker %s tools: %w", w.cfg.Name, err))
		}
		spec.Capabilities = w.caps
		spec.Tools = reg
		workers = append(workers, spec)
	}

	provider := usecase.NewDefaultAgentSetProvider(usecase.AgentSetConfig{
		Coordinator: coordinator,
		Workers:     workers,
		Bus:         infra.Bus,
		Logger:      log,
		Retry:       true,
	})
	set, err := provider.AgentSet(ctx)
	if err != nil {
		return fail(err)
	}

	orch, err := voicecommand.New(set, orchestratorOptions(cfg.Orchestrator, infra))
	if err != nil {
		return fail(err)
	}

	log.Info("agents ready",
		"coordinator", set.Coordinator.Name(),
		"workers", len(set.Workers),
		"providers", registry.List(),
	)
	return &AgentComponents{
		Prompts:      prompts,
		LLMRegistry:  registry,
		Set:          set,
		Orchestrator: orch,
	}, cleanup, nil
}

func orchestratorOptions(oc config.OrchestratorConfig, infra *InfraComponents) voicecommand.Options {
	repeat := oc.RepeatThreshold
	if repeat == 0 {
		repeat = -1
	}
	return voicecommand.Options{
		MaxIterations:     oc.MaxIterations,
		RepeatThreshold:   repeat,
		Guidance:          oc.Guidance,
		WorkerErrorPolicy: voicecommand.WorkerErrorPolicy(oc.WorkerErrorPolicy),
		Bus:               infra.Bus,
		Logger:            infra.Logger,
	}
}

// agentSpec resolves the provider and instructions for one agent.
func agentSpec(cfg *config.Config, ac config.AgentConfig, prompts *prompt.Library, template string, registry *llm.Registry, infra *InfraComponents) (usecase.AgentSpec, error) {
	provider, err := registry.Resolve(ac.Provider, cfg.LLM.DefaultProvider, cfg.LLM.Failover, infra.Logger)
	if err != nil {
		return usecase.AgentSpec{}, fmt.Errorf("agent %s: %w", ac.Name, err)
	}
	instructions, err := prompts.Get(template)
	if err != nil {
		return usecase.AgentSpec{}, fmt.Errorf("agent %s: %w", ac.Name, err)
	}
	return usecase.AgentSpec{
		Name:              ac.Name,
		Instructions:      instructions,
		LLM:               provider,
		Model:             ac.Model,
		MaxTokens:         ac.MaxTokens,
		Temperature:       ac.Temperature,
		MaxToolIterations: ac.MaxToolIterations,
	}, nil
}

// newEmailFlow builds the spam screening and reply pipeline. Both steps run
// on the coordinator's provider without tools.
func newEmailFlow(cfg *config.Config, agents *AgentComponents, infra *InfraComponents, svc *ServiceComponents) (*emailflow.ProcessIncomingEmail, error) {
	newAgent := func(name, template string) (domain.TextAgent, error) {
		spec, err := agentSpec(cfg, cfg.Agents.Coordinator, agents.Prompts, template, agents.LLMRegistry, infra)
		if err != nil {
			return nil, err
		}
		return usecase.NewToolAgent(usecase.ToolAgentDeps{
			Name:            name,
			Instructions:    spec.Instructions,
			LLM:             spec.LLM,
			Model:           spec.Model,
			MaxTokens:       spec.MaxTokens,
			Temperature:     spec.Temperature,
			MaxIterations:   1,
			ResponseFormat:  domain.ResponseJSON,
			Logger:          infra.Logger.With("agent", name),
			Bus:             infra.Bus,
			ErrorClassifier: usecase.NewErrorClassifier(),
		}), nil
	}

	spamAgent, err := newAgent("SpamDetector", prompt.SpamDetection)
	if err != nil {
		return nil, err
	}
	draftAgent, err := newAgent("EmailDrafter", prompt.EmailDraft)
	if err != nil {
		return nil, err
	}
	detector, err := emailflow.NewAgentSpamDetector(spamAgent)
	if err != nil {
		return nil, err
	}
	drafter, err := emailflow.NewAgentEmailDrafter(draftAgent)
	if err != nil {
		return nil, err
	}
	return &emailflow.ProcessIncomingEmail{
		Detector:    detector,
		Drafter:     drafter,
		Email:       svc.Email,
		Disposition: svc.Quarantine,
		Bus:         infra.Bus,
		Logger:      infra.Logger,
	}, nil
}
