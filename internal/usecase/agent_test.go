package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/domain"
)

// --- Mocks ---

type mockLLM struct {
	mu        sync.Mutex
	responses []domain.ChatResponse
	errs      []error
	callIdx   int
	requests  []domain.ChatRequest
}

func (m *mockLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	idx := m.callIdx
	m.callIdx++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx >= len(m.responses) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	return new(m.responses[idx]), nil
}

func (m *mockLLM) Name() string { return "mock" }

type mockToolExecutor struct {
	tools   map[string]domain.Tool
	schemas []domain.ToolSchema
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema { return m.schemas }

type staticTool struct {
	name   string
	result string
	err    error

	mu   sync.Mutex
	args []json.RawMessage
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *staticTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	t.args = append(t.args, params)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return &domain.ToolResult{Content: t.result}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toolCallResponse(calls ...domain.ToolCall) domain.ChatResponse {
	return domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls}}
}

func textResponse(s string) domain.ChatResponse {
	return domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: s}}
}

// --- Tests ---

func TestToolAgent_PlainChat(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse(`{"Action":"DONE","Summary":"ok"}`)}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:         "Planner",
		Instructions: "You are the Orchestrator.",
		LLM:          llm,
		Model:        "gpt-4o-mini",
		Logger:       discardLogger(),
	})

	out, err := agent.Run(context.Background(), "process voice recording in file /a.wav")
	require.NoError(t, err)
	assert.Equal(t, `{"Action":"DONE","Summary":"ok"}`, out)
	assert.Equal(t, "Planner", agent.Name())
	assert.Empty(t, agent.Capabilities())

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "You are the Orchestrator.", req.Messages[0].Content)
	assert.Equal(t, domain.RoleUser, req.Messages[1].Role)
	assert.Empty(t, req.Tools)
	assert.Equal(t, domain.ResponseText, req.ResponseFormat)
}

func TestToolAgent_JSONResponseFormat(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{textResponse(`{"spam":false}`)}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:           "SpamDetector",
		LLM:            llm,
		ResponseFormat: domain.ResponseJSON,
		Logger:         discardLogger(),
	})

	_, err := agent.Run(context.Background(), "Subject: lunch")
	require.NoError(t, err)
	require.Len(t, llm.requests, 1)
	assert.Equal(t, domain.ResponseJSON, llm.requests[0].ResponseFormat)
}

func TestToolAgent_RunsToolsThenAnswers(t *testing.T) {
	transcribe := &staticTool{name: "TranscribeVoiceRecording", result: `{"ok":true,"type":"Transcription","data":{"text":"hi"}}`}
	clock := &staticTool{name: "GetCurrentDateTime", result: "LOCAL=x;UTC=y"}
	tools := &mockToolExecutor{
		tools:   map[string]domain.Tool{transcribe.name: transcribe, clock.name: clock},
		schemas: []domain.ToolSchema{transcribe.Schema(), clock.Schema()},
	}
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse(
			domain.ToolCall{ID: "c1", Name: "TranscribeVoiceRecording", Arguments: json.RawMessage(`{"recording":"/a.wav"}`)},
			domain.ToolCall{ID: "c2", Name: "GetCurrentDateTime", Arguments: json.RawMessage(`{}`)},
		),
		textResponse("hi"),
	}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:         "Utility",
		Capabilities: []string{"TranscribeVoiceRecording(audioPath)", "GetCurrentDateTime()"},
		LLM:          llm,
		Tools:        tools,
		Logger:       discardLogger(),
	})

	out, err := agent.Run(context.Background(), "TranscribeVoiceRecording(/a.wav)")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	require.Len(t, llm.requests, 2)
	assert.Len(t, llm.requests[0].Tools, 2)
	second := llm.requests[1].Messages
	require.Len(t, second, 4, "user, assistant, two tool results")
	assert.Equal(t, domain.RoleTool, second[2].Role)
	assert.Equal(t, "TranscribeVoiceRecording", second[2].Name)
	assert.Equal(t, "c1", second[2].ToolCalls[0].ID)
	assert.Equal(t, "LOCAL=x;UTC=y", second[3].Content)
	assert.JSONEq(t, `{"recording":"/a.wav"}`, string(transcribe.args[0]))
}

func TestToolAgent_ToolErrorsGoBackToModel(t *testing.T) {
	broken := &staticTool{name: "SendEmail", err: errors.New("smtp down")}
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse(
			domain.ToolCall{ID: "1", Name: "SendEmail"},
			domain.ToolCall{ID: "2", Name: "Missing"},
		),
		textResponse("could not send"),
	}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:   "OfficeAutomation",
		LLM:    llm,
		Tools:  &mockToolExecutor{tools: map[string]domain.Tool{"SendEmail": broken}},
		Logger: discardLogger(),
	})

	out, err := agent.Run(context.Background(), "SendEmail")
	require.NoError(t, err)
	assert.Equal(t, "could not send", out)
	msgs := llm.requests[1].Messages
	assert.Equal(t, "smtp down", msgs[2].Content)
	assert.Equal(t, domain.ErrToolNotFound.Error(), msgs[3].Content)
}

type emptyTool struct{}

func (emptyTool) Name() string              { return "SendFallbackNotification" }
func (emptyTool) Description() string       { return "returns no result" }
func (emptyTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: "SendFallbackNotification"} }
func (emptyTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return nil, nil
}

func TestToolAgent_NilToolResult(t *testing.T) {
	llm := &mockLLM{responses: []domain.ChatResponse{
		toolCallResponse(domain.ToolCall{ID: "1", Name: "SendFallbackNotification"}),
		textResponse("done"),
	}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:   "OfficeAutomation",
		LLM:    llm,
		Tools:  &mockToolExecutor{tools: map[string]domain.Tool{"SendFallbackNotification": emptyTool{}}},
		Logger: discardLogger(),
	})

	out, err := agent.Run(context.Background(), "SendFallbackNotification(hi)")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	msgs := llm.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.RoleTool, msgs[2].Role)
	assert.Empty(t, msgs[2].Content)
}

func TestToolAgent_MaxIterations(t *testing.T) {
	call := toolCallResponse(domain.ToolCall{ID: "1", Name: "loop"})
	llm := &mockLLM{responses: []domain.ChatResponse{call, call, call}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:          "W",
		LLM:           llm,
		Tools:         &mockToolExecutor{tools: map[string]domain.Tool{"loop": &staticTool{name: "loop", result: "again"}}},
		MaxIterations: 3,
		Logger:        discardLogger(),
	})

	_, err := agent.Run(context.Background(), "go")
	assert.ErrorIs(t, err, domain.ErrMaxIterations)
	assert.Len(t, llm.requests, 3)
}

func TestToolAgent_RetriesRetryableErrors(t *testing.T) {
	llm := &mockLLM{
		errs:      []error{errors.New("API error 503: overloaded")},
		responses: []domain.ChatResponse{{}, textResponse("recovered")},
	}
	agent := NewToolAgent(ToolAgentDeps{
		Name:            "P",
		LLM:             llm,
		Logger:          discardLogger(),
		ErrorClassifier: NewErrorClassifier(),
	})

	out, err := agent.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Len(t, llm.requests, 2)
}

func TestToolAgent_PermanentErrorNotRetried(t *testing.T) {
	llm := &mockLLM{errs: []error{errors.New("API error 401: bad key")}}
	agent := NewToolAgent(ToolAgentDeps{
		Name:            "P",
		LLM:             llm,
		Logger:          discardLogger(),
		ErrorClassifier: NewErrorClassifier(),
	})

	_, err := agent.Run(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Len(t, llm.requests, 1)
}

func TestToolAgent_CapabilitiesAreCopied(t *testing.T) {
	agent := NewToolAgent(ToolAgentDeps{Name: "W", Capabilities: []string{"A()"}, LLM: &mockLLM{}})
	caps := agent.Capabilities()
	caps[0] = "B()"
	assert.Equal(t, []string{"A()"}, agent.Capabilities())
}

func TestFuncAgent(t *testing.T) {
	a := NewFuncAgent("Echo", []string{"Echo(text)"}, func(_ context.Context, in string) (string, error) {
		return "echo:" + in, nil
	})
	out, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
	assert.Equal(t, "Echo", a.Name())
	assert.Equal(t, []string{"Echo(text)"}, a.Capabilities())
}

func TestRetryBackoff(t *testing.T) {
	assert.GreaterOrEqual(t, retryBackoff(0), baseRetryDelay)
	assert.LessOrEqual(t, retryBackoff(10), maxRetryDelay+maxRetryDelay/4)
}
