package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/adapter/llm"
	"voice2action/internal/adapter/messaging"
	"voice2action/internal/adapter/prompt"
	"voice2action/internal/adapter/store"
	"voice2action/internal/adapter/tool"
	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
	"voice2action/internal/usecase"
	"voice2action/internal/usecase/datetime"
	"voice2action/internal/usecase/email"
	"voice2action/internal/usecase/emailflow"
	"voice2action/internal/usecase/eventbus"
	"voice2action/internal/usecase/reminder"
	"voice2action/internal/usecase/voicecommand"
)

const memoText = "Remind me to submit the quarterly report on November 20th at 5pm."

// stack is the full voice pipeline wired against a FakeOpenAI server.
type stack struct {
	orch     *voicecommand.Orchestrator
	provider domain.LLMProvider
	prompts  *prompt.Library
	store    *store.SQLiteReminderStore
	outbox   *messaging.Outbox
	mail     *email.Service
	bus      *eventbus.Bus
	recorder *eventbus.Recorder
	log      *slog.Logger
}

func newStack(t *testing.T, fake *FakeOpenAI) *stack {
	t.Helper()
	return newStackFor(t, fake.URL, "sk-test", "gpt-test")
}

// newStackFor wires the pipeline against any OpenAI-compatible endpoint.
func newStackFor(t *testing.T, baseURL, apiKey, model string) *stack {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	provider := llm.NewOpenAIProvider(config.ProviderConfig{
		Name:    "fake",
		Type:    "openai",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
	}, log)
	transcriber := llm.NewWhisperTranscriber(config.TranscriptionConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   "whisper-1",
		Timeout: time.Minute,
	}, config.CircuitBreakerConfig{MaxFailures: 3, Timeout: time.Second, Interval: time.Minute}, log)

	st, err := store.NewSQLiteReminderStore(filepath.Join(dir, "reminders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	outbox, err := messaging.NewOutbox(filepath.Join(dir, "outbox.jsonl"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = outbox.Close() })

	bus := eventbus.New(log)
	recorder := eventbus.NewRecorder(nil)
	bus.SubscribeAll(recorder.Handle)
	t.Cleanup(bus.Close)

	mail := email.NewService(outbox, email.Config{From: "assistant@example.com", To: "me@example.com"}, nil, bus, log)
	reminders := reminder.NewService(reminder.Deps{Store: st, Bus: bus, Logger: log})

	utility := tool.NewRegistry(log)
	require.NoError(t, utility.Register(
		tool.NewTranscribeTool(transcriber, log),
		tool.NewDateTimeTool(datetime.NewService(nil, time.UTC), log),
	))
	office := tool.NewRegistry(log)
	require.NoError(t, office.Register(
		tool.NewReminderTool(reminders, time.UTC, log),
		tool.NewEmailTool(mail, log),
		tool.NewFallbackTool(mail, bus, log),
	))

	prompts, err := prompt.Load("")
	require.NoError(t, err)
	instructions := func(name string) string {
		text, err := prompts.Get(name)
		require.NoError(t, err)
		return text
	}

	set, err := usecase.NewDefaultAgentSetProvider(usecase.AgentSetConfig{
		Coordinator: usecase.AgentSpec{Name: "Planner", Instructions: instructions(prompt.Coordinator), LLM: provider, MaxToolIterations: 1},
		Workers: []usecase.AgentSpec{
			{Name: "Utility", Capabilities: usecase.UtilityCapabilities, Instructions: instructions(prompt.Utility), LLM: provider, Tools: utility, MaxToolIterations: 5},
			{Name: "OfficeAutomation", Capabilities: usecase.OfficeCapabilities, Instructions: instructions(prompt.OfficeAutomation), LLM: provider, Tools: office, MaxToolIterations: 5},
		},
		Bus:    bus,
		Logger: log,
	}).AgentSet(context.Background())
	require.NoError(t, err)

	orch, err := voicecommand.New(set, voicecommand.Options{Bus: bus, Logger: log})
	require.NoError(t, err)

	return &stack{
		orch:     orch,
		provider: provider,
		prompts:  prompts,
		store:    st,
		outbox:   outbox,
		mail:     mail,
		bus:      bus,
		recorder: recorder,
		log:      log,
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o600))
	return path
}

func planJSON(t *testing.T, msg domain.CoordinatorMessage) string {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return string(data)
}

func toolCall(id, name, args string) FakeMessage {
	return FakeMessage{Role: "assistant", ToolCalls: []FakeToolCall{{ID: id, Name: name, Arguments: args}}}
}

// workerReply calls tool on the first turn and echoes the tool output on the
// second, the way the worker instructions ask.
func workerReply(turn ChatTurn, call FakeMessage) FakeMessage {
	if last := turn.Last(); last.Role == "tool" {
		return FakeMessage{Role: "assistant", Content: last.Content}
	}
	return call
}

func TestVoicePipelineTranscribeThenRemind(t *testing.T) {
	audio := writeAudio(t)
	var plans atomic.Int32

	fake := NewFakeOpenAI(t, memoText, func(turn ChatTurn) FakeMessage {
		switch {
		case strings.Contains(turn.System, "You are the Utility agent"):
			return workerReply(turn, toolCall("call_tr", "TranscribeVoiceRecording", `{"audioPath":"`+audio+`"}`))
		case strings.Contains(turn.System, "You are the OfficeAutomation agent"):
			return workerReply(turn, toolCall("call_rem", "SetReminder",
				`{"task":"Submit the quarterly report","dueDate":"2026-11-20T17:00:00Z","reminderDate":"2026-11-20T09:00:00Z"}`))
		}
		switch plans.Add(1) {
		case 1:
			return FakeMessage{Role: "assistant", Content: planJSON(t, domain.CoordinatorMessage{
				Action: "DELEGATE", Agent: "Utility", Task: "TranscribeVoiceRecording(" + audio + ")",
			})}
		case 2:
			return FakeMessage{Role: "assistant", Content: planJSON(t, domain.CoordinatorMessage{
				Action: "DELEGATE", Agent: "OfficeAutomation",
				Task: "SetReminder(task=Submit the quarterly report, dueDate=2026-11-20T17:00:00Z, reminderDate=2026-11-20T09:00:00Z)",
			})}
		default:
			return FakeMessage{Role: "assistant", Content: planJSON(t, domain.CoordinatorMessage{
				Action: "DONE", Summary: "Reminder set for the quarterly report.",
			})}
		}
	})
	s := newStack(t, fake)

	res, err := s.orch.Execute(t.Context(), audio)
	require.NoError(t, err)
	require.True(t, res.Completed())
	assert.Equal(t, "Reminder set for the quarterly report.", *res.Summary)
	require.NotNil(t, res.Transcription)
	assert.Equal(t, memoText, *res.Transcription)
	require.Len(t, res.Actions, 5)
	assert.Equal(t, "Utility", res.Actions[1].Agent)
	assert.Equal(t, "OfficeAutomation", res.Actions[3].Agent)
	assert.Contains(t, res.Actions[3].RawResult, `"ok":true`)

	pending, err := s.store.ListPending(t.Context())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Submit the quarterly report", pending[0].Task)
	assert.True(t, pending[0].DueDate.Equal(time.Date(2026, 11, 20, 17, 0, 0, 0, time.UTC)))
	require.NotNil(t, pending[0].RemindAt)

	chats, uploads := fake.Counts()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 7, chats)

	s.bus.Close()
	assert.Equal(t, 1, s.recorder.Count(domain.EventOrchestrationCompleted))
	assert.Equal(t, 1, s.recorder.Count(domain.EventReminderCreated))
}

func TestVoicePipelineToolErrorReachesCoordinator(t *testing.T) {
	audio := writeAudio(t)
	var plans atomic.Int32
	var sawError atomic.Bool

	fake := NewFakeOpenAI(t, memoText, func(turn ChatTurn) FakeMessage {
		if strings.Contains(turn.System, "You are the OfficeAutomation agent") {
			return workerReply(turn, toolCall("call_rem", "SetReminder", `{"task":"Submit","dueDate":"next-ish"}`))
		}
		if plans.Add(1) == 1 {
			return FakeMessage{Role: "assistant", Content: planJSON(t, domain.CoordinatorMessage{
				Action: "DELEGATE", Agent: "OfficeAutomation", Task: "SetReminder(task=Submit, dueDate=next-ish)",
			})}
		}
		if strings.Contains(turn.Last().Content, "INVALID_INPUT") {
			sawError.Store(true)
		}
		return FakeMessage{Role: "assistant", Content: planJSON(t, domain.CoordinatorMessage{
			Action: "DONE", Summary: "Could not set the reminder: the due date was unclear.",
		})}
	})
	s := newStack(t, fake)

	res, err := s.orch.Execute(t.Context(), audio)
	require.NoError(t, err)
	require.True(t, res.Completed())
	assert.True(t, sawError.Load(), "coordinator context should carry the tool error")
	assert.Contains(t, res.Actions[1].RawResult, `"ok":false`)

	pending, err := s.store.ListPending(t.Context())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestEmailPipeline(t *testing.T) {
	fake := NewFakeOpenAI(t, "Hi, can we move our lunch to Thursday?", func(turn ChatTurn) FakeMessage {
		switch {
		case strings.Contains(turn.System, "You screen incoming messages"):
			if strings.Contains(turn.Last().Content, "PRIZE") {
				return FakeMessage{Role: "assistant", Content: `{"is_spam":true,"reason":"prize scam"}`}
			}
			return FakeMessage{Role: "assistant", Content: `{"is_spam":false,"reason":"personal message"}`}
		case strings.Contains(turn.System, "You write replies"):
			return FakeMessage{Role: "assistant", Content: "```json\n{\"response\":\"Thursday works for me.\"}\n```"}
		}
		return FakeMessage{Role: "assistant", Content: "unexpected"}
	})
	s := newStack(t, fake)

	agent := func(name, template string) domain.TextAgent {
		text, err := s.prompts.Get(template)
		require.NoError(t, err)
		return usecase.NewToolAgent(usecase.ToolAgentDeps{Name: name, Instructions: text, LLM: s.provider, MaxIterations: 1, Logger: s.log})
	}
	detector, err := emailflow.NewAgentSpamDetector(agent("SpamDetector", prompt.SpamDetection))
	require.NoError(t, err)
	drafter, err := emailflow.NewAgentEmailDrafter(agent("EmailDrafter", prompt.EmailDraft))
	require.NoError(t, err)

	quarantine := messaging.NewQuarantine(filepath.Join(t.TempDir(), "quarantine.jsonl"), s.log)
	flow := &emailflow.ProcessIncomingEmail{
		Detector:    detector,
		Drafter:     drafter,
		Email:       s.mail,
		Disposition: quarantine,
		Bus:         s.bus,
		Logger:      s.log,
	}

	spam, err := flow.Handle(t.Context(), "YOU WON A PRIZE, send your bank details")
	require.NoError(t, err)
	assert.True(t, spam.Spam)
	records, err := quarantine.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "prize scam", records[0].Reason)

	audio := &emailflow.ProcessIncomingAudio{
		Transcriber: llm.NewWhisperTranscriber(config.TranscriptionConfig{BaseURL: fake.URL, Model: "whisper-1"}, config.CircuitBreakerConfig{}, s.log),
		Email:       flow,
	}
	reply, err := audio.Handle(t.Context(), writeAudio(t))
	require.NoError(t, err)
	assert.False(t, reply.Spam)
	assert.Equal(t, "Thursday works for me.", reply.Reply)

	sent, err := s.outbox.Messages()
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, emailflow.DefaultReplySubject, sent[0].Subject)
	assert.Equal(t, "me@example.com", sent[0].To)
}
