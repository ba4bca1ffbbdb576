package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/domain"
)

func TestCoordinatorInstructions(t *testing.T) {
	got := CoordinatorInstructions("Agents:\n{{AGENT_CATALOG}}\nEnd", "- Utility: A()")
	assert.True(t, strings.HasPrefix(got, "Agents:\n- Utility: A()\nEnd\nAlways respond ONLY in minified JSON"))
	assert.Contains(t, got, "TranscribeVoiceRecording(/absolute/path.mp3)")
}

func TestDefaultAgentSetProvider(t *testing.T) {
	coordLLM := &mockLLM{responses: []domain.ChatResponse{textResponse(`{"Action":"DONE"}`)}}
	workerLLM := &mockLLM{}
	p := NewDefaultAgentSetProvider(AgentSetConfig{
		Coordinator: AgentSpec{Name: "Planner", Instructions: "Catalog:\n{{AGENT_CATALOG}}", LLM: coordLLM, Capabilities: []string{"ignored"}},
		Workers: []AgentSpec{
			{Name: "Utility", Capabilities: UtilityCapabilities, LLM: workerLLM},
			{Name: "OfficeAutomation", Capabilities: OfficeCapabilities, LLM: workerLLM},
		},
		Logger: discardLogger(),
	})

	set, err := p.AgentSet(context.Background())
	require.NoError(t, err)
	require.Len(t, set.Workers, 2)
	assert.Equal(t, "Planner", set.Coordinator.Name())
	assert.Empty(t, set.Coordinator.Capabilities())
	assert.Equal(t, OfficeCapabilities, set.Workers[1].Capabilities())

	_, err = set.Coordinator.Run(context.Background(), "go")
	require.NoError(t, err)
	system := coordLLM.requests[0].Messages[0].Content
	assert.Contains(t, system, "- Utility: TranscribeVoiceRecording(audioPath), GetCurrentDateTime()")
	assert.Contains(t, system, "- OfficeAutomation: SetReminder(task, dueDate, reminderDate?), SendEmail(subject, body), SendFallbackNotification(message)")
	assert.NotContains(t, system, "{{AGENT_CATALOG}}")
	assert.Equal(t, domain.ResponseJSON, coordLLM.requests[0].ResponseFormat)

	_, err = set.Workers[0].Run(context.Background(), "GetCurrentDateTime()")
	require.NoError(t, err)
	require.Len(t, workerLLM.requests, 1)
	assert.Equal(t, domain.ResponseText, workerLLM.requests[0].ResponseFormat, "workers reply in text")
}

func TestDefaultAgentSetProvider_Errors(t *testing.T) {
	llm := &mockLLM{}

	_, err := NewDefaultAgentSetProvider(AgentSetConfig{}).AgentSet(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewDefaultAgentSetProvider(AgentSetConfig{
		Coordinator: AgentSpec{Name: "P", LLM: llm},
		Workers:     []AgentSpec{{Name: "W"}},
	}).AgentSet(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewDefaultAgentSetProvider(AgentSetConfig{
		Coordinator: AgentSpec{Name: "P", LLM: llm},
		Workers:     []AgentSpec{{Name: "W", LLM: llm}, {Name: "w", LLM: llm}},
	}).AgentSet(context.Background())
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewDefaultAgentSetProvider(AgentSetConfig{Coordinator: AgentSpec{Name: "P", LLM: llm}}).AgentSet(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticAgentSetProvider(t *testing.T) {
	set := &domain.AgentSet{Coordinator: NewFuncAgent("P", nil, nil)}
	got, err := StaticAgentSetProvider{Set: set}.AgentSet(context.Background())
	require.NoError(t, err)
	assert.Same(t, set, got)

	_, err = StaticAgentSetProvider{}.AgentSet(context.Background())
	assert.Error(t, err)
}
