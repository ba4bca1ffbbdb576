// Package integration holds end-to-end tests that wire real adapters
// together, plus helpers for running them against live providers.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

// Config holds integration test configuration from environment
type Config struct {
	OpenAIKey   string
	OpenAIModel string
	AudioPath   string
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig loads integration test configuration from environment
func LoadConfig() *Config {
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Config{
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: model,
		AudioPath:   os.Getenv("VOICE2ACTION_TEST_AUDIO"),
		TestTimeout: 120 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the required API key is not set
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("Skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// FakeToolCall is a function call in a FakeMessage.
type FakeToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// FakeMessage is one chat message as seen or produced by FakeOpenAI.
type FakeMessage struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []FakeToolCall
}

// ChatTurn is one decoded chat completions request.
type ChatTurn struct {
	System   string
	Messages []FakeMessage // without the system message
	Tools    []string
}

// Last returns the final message of the turn.
func (c ChatTurn) Last() FakeMessage {
	if len(c.Messages) == 0 {
		return FakeMessage{}
	}
	return c.Messages[len(c.Messages)-1]
}

// FakeOpenAI serves the chat completions and audio transcription endpoints
// of the OpenAI API. Chat replies come from respond; every upload is
// transcribed as Transcript.
type FakeOpenAI struct {
	*httptest.Server
	Transcript string

	respond func(ChatTurn) FakeMessage
	mu      sync.Mutex
	chats   int
	uploads int
}

// NewFakeOpenAI starts a fake server that is closed when the test ends.
func NewFakeOpenAI(t *testing.T, transcript string, respond func(ChatTurn) FakeMessage) *FakeOpenAI {
	t.Helper()
	f := &FakeOpenAI{Transcript: transcript, respond: respond}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", f.handleChat)
	mux.HandleFunc("POST /audio/transcriptions", f.handleTranscription)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Counts returns how many chat and transcription requests were served.
func (f *FakeOpenAI) Counts() (chats, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats, f.uploads
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

func (f *FakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string        `json:"model"`
		Messages []wireMessage `json:"messages"`
		Tools    []struct {
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var turn ChatTurn
	for _, m := range req.Messages {
		if m.Role == "system" {
			turn.System = m.Content
			continue
		}
		fm := FakeMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			fm.ToolCalls = append(fm.ToolCalls, FakeToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		turn.Messages = append(turn.Messages, fm)
	}
	for _, tool := range req.Tools {
		turn.Tools = append(turn.Tools, tool.Function.Name)
	}

	f.mu.Lock()
	f.chats++
	f.mu.Unlock()

	reply := f.respond(turn)
	out := wireMessage{Role: "assistant", Content: reply.Content}
	finish := "stop"
	for _, tc := range reply.ToolCalls {
		var call wireToolCall
		call.ID, call.Type = tc.ID, "function"
		call.Function.Name, call.Function.Arguments = tc.Name, tc.Arguments
		out.ToolCalls = append(out.ToolCalls, call)
		finish = "tool_calls"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-fake",
		"model":   req.Model,
		"created": time.Now().Unix(),
		"choices": []map[string]any{{"index": 0, "message": out, "finish_reason": finish}},
		"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func (f *FakeOpenAI) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, _, err := r.FormFile("file"); err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"text": f.Transcript})
}
