package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/eventbus"
)

// Recovery loop constants.
const (
	maxLLMRetries  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
)

// ToolAgentDeps holds injected dependencies for a ToolAgent.
type ToolAgentDeps struct {
	Name         string
	Capabilities []string

	// Instructions become the system message of every conversation.
	Instructions string
	LLM          domain.LLMProvider
	Tools        domain.ToolExecutor // optional, nil = plain chat
	Model        string
	MaxTokens    int
	Temperature  float64

	// ResponseFormat constrains replies; ResponseJSON for agents whose
	// output is parsed as a JSON object.
	ResponseFormat domain.ResponseFormat

	// MaxIterations caps LLM calls per Run. Default 10.
	MaxIterations   int
	Logger          *slog.Logger
	Bus             domain.EventBus  // optional, nil = no events
	ErrorClassifier *ErrorClassifier // optional, nil = no retries
}

// ToolAgent is an LLM-backed domain.TextAgent that may call tools before
// answering. Each Run starts a fresh conversation, so one ToolAgent can
// serve concurrent callers.
type ToolAgent struct {
	deps ToolAgentDeps
}

var _ domain.TextAgent = (*ToolAgent)(nil)

// NewToolAgent creates a ToolAgent.
func NewToolAgent(deps ToolAgentDeps) *ToolAgent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 10
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ToolAgent{deps: deps}
}

func (a *ToolAgent) Name() string { return a.deps.Name }

func (a *ToolAgent) Capabilities() []string {
	return append([]string(nil), a.deps.Capabilities...)
}

// Run sends input to the LLM and executes requested tool calls until the
// model replies without tool calls. It fails with domain.ErrMaxIterations
// when the model keeps calling tools.
func (a *ToolAgent) Run(ctx context.Context, input string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(tracer.StringAttr("agent.name", a.deps.Name)),
	)
	defer span.End()

	messages := make([]domain.Message, 0, 4)
	if a.deps.Instructions != "" {
		messages = append(messages, domain.Message{
			Role:      domain.RoleSystem,
			Content:   a.deps.Instructions,
			Timestamp: time.Now(),
		})
	}
	messages = append(messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   input,
		Timestamp: time.Now(),
	})

	var schemas []domain.ToolSchema
	if a.deps.Tools != nil {
		schemas = a.deps.Tools.Schemas()
	}

	var totalUsage domain.Usage
	for i := 0; i < a.deps.MaxIterations; i++ {
		span.AddEvent("agent.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		req := domain.ChatRequest{
			Model:          a.deps.Model,
			Messages:       messages,
			Tools:          schemas,
			MaxTokens:      a.deps.MaxTokens,
			Temperature:    a.deps.Temperature,
			ResponseFormat: a.deps.ResponseFormat,
		}

		eventbus.Emit(ctx, a.deps.Bus, domain.EventLLMCallStarted, "", map[string]string{"agent": a.deps.Name})
		resp, err := a.callLLMWithRetry(ctx, req)
		if err != nil {
			eventbus.Emit(ctx, a.deps.Bus, domain.EventAgentError, "", map[string]string{
				"agent": a.deps.Name,
				"error": err.Error(),
			})
			tracer.RecordError(span, err)
			return "", domain.NewDomainError("ToolAgent.Run", err, a.deps.Name)
		}
		eventbus.Emit(ctx, a.deps.Bus, domain.EventLLMCallCompleted, "", map[string]string{"agent": a.deps.Name})

		totalUsage.PromptTokens += resp.Usage.PromptTokens
		totalUsage.CompletionTokens += resp.Usage.CompletionTokens
		totalUsage.TotalTokens += resp.Usage.TotalTokens

		msg := resp.Message
		msg.Role = domain.RoleAssistant
		messages = append(messages, msg)

		a.deps.Logger.Debug("llm response",
			"agent", a.deps.Name,
			"iteration", i,
			"tool_calls", len(msg.ToolCalls),
			"tokens", resp.Usage.TotalTokens,
		)

		// No tool calls = final response.
		if len(msg.ToolCalls) == 0 {
			span.SetAttributes(tracer.IntAttr("llm.total_tokens", totalUsage.TotalTokens))
			tracer.SetOK(span)
			return msg.Content, nil
		}

		// Tool calls run in parallel; results keep the original call order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for idx, call := range msg.ToolCalls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				toolMsgs[idx] = a.executeTool(ctx, call)
			}()
		}
		wg.Wait()
		messages = append(messages, toolMsgs...)
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	return "", domain.NewDomainError("ToolAgent.Run", domain.ErrMaxIterations, a.deps.Name)
}

// executeTool runs a single tool call and returns the result as a Message.
// Tool failures are reported to the model, not to the caller.
func (a *ToolAgent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	toolMsg := func(content string) domain.Message {
		return domain.Message{
			Role:      domain.RoleTool,
			Name:      call.Name,
			Content:   content,
			ToolCalls: []domain.ToolCall{{ID: call.ID, Name: call.Name}},
			Timestamp: time.Now(),
		}
	}

	if a.deps.Tools == nil {
		return toolMsg(domain.ErrToolNotFound.Error() + ": " + call.Name)
	}
	tool, err := a.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return toolMsg(err.Error())
	}

	eventbus.Emit(ctx, a.deps.Bus, domain.EventToolCallStarted, "", map[string]string{
		"agent": a.deps.Name,
		"tool":  call.Name,
	})
	result, err := tool.Execute(ctx, call.Arguments)
	eventbus.Emit(ctx, a.deps.Bus, domain.EventToolCallCompleted, "", map[string]string{
		"agent":   a.deps.Name,
		"tool":    call.Name,
		"success": strconv.FormatBool(err == nil && (result == nil || !result.IsError)),
	})
	if err != nil {
		tracer.RecordError(span, err)
		a.deps.Logger.Warn("tool failed", "agent", a.deps.Name, "tool", call.Name, "error", err)
		return toolMsg(err.Error())
	}

	tracer.SetOK(span)
	if result == nil {
		return toolMsg("")
	}
	return toolMsg(result.Content)
}

// callLLMWithRetry retries retryable provider errors with backoff when an
// ErrorClassifier is configured.
func (a *ToolAgent) callLLMWithRetry(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	maxAttempts := 1
	if a.deps.ErrorClassifier != nil {
		maxAttempts = maxLLMRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		llmCtx, llmSpan := tracer.StartSpan(ctx, "agent.llm_call")
		resp, err := a.deps.LLM.Chat(llmCtx, req)
		llmSpan.End()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if a.deps.ErrorClassifier == nil {
			return nil, lastErr
		}
		classified := a.deps.ErrorClassifier.Classify(err)
		if classified.Category != ErrorCategoryRetryable || errors.Is(err, context.Canceled) {
			return nil, lastErr
		}

		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			a.deps.Logger.Info("retrying LLM call after error",
				"agent", a.deps.Name, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

// FuncAgent adapts a function to domain.TextAgent.
type FuncAgent struct {
	name string
	caps []string
	fn   func(ctx context.Context, input string) (string, error)
}

var _ domain.TextAgent = (*FuncAgent)(nil)

// NewFuncAgent creates a FuncAgent.
func NewFuncAgent(name string, caps []string, fn func(ctx context.Context, input string) (string, error)) *FuncAgent {
	return &FuncAgent{name: name, caps: caps, fn: fn}
}

func (f *FuncAgent) Name() string           { return f.name }
func (f *FuncAgent) Capabilities() []string { return append([]string(nil), f.caps...) }

func (f *FuncAgent) Run(ctx context.Context, input string) (string, error) {
	return f.fn(ctx, input)
}
