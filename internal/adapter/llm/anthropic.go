package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Anthropic Messages API. The API has no JSON
// mode, so JSON requests open the assistant turn with "{" and the reply is
// returned with that brace restored.
type AnthropicProvider struct {
	endpoint chatEndpoint
}

// NewAnthropicProvider builds a provider for cfg.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &AnthropicProvider{endpoint: chatEndpoint{
		provider: cfg.Name,
		model:    cfg.Model,
		url:      base + "/v1/messages",
		headers: map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": anthropicVersion,
		},
		client: NewHTTPClient(cfg),
		logger: logger,
	}}
}

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	prefilled := wantsPrefill(req)
	decode := func(resp anthropicReply) (*domain.ChatResponse, error) {
		return decodeAnthropic(resp, prefilled), nil
	}
	return exchange(ctx, p.endpoint, req, encodeAnthropic, decode)
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.endpoint.provider }

type anthropicMessagesRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	Messages    []anthropicTurn `json:"messages"`
	Tools       []anthropicTool `json:"tools,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type anthropicTurn struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicReply struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// anthropicConversation folds domain messages into the Messages API shape:
// system text moves to the top level and tool results ride in user turns.
type anthropicConversation struct {
	system []string
	turns  []anthropicTurn
}

func (c *anthropicConversation) add(m domain.Message) {
	switch {
	case m.Role == domain.RoleSystem:
		c.system = append(c.system, m.Content)
	case m.Role == domain.RoleTool:
		block := anthropicBlock{Type: "tool_result", ToolUseID: toolCallID(m), Content: m.Content}
		if last := c.last(); last != nil && last.Role == domain.RoleUser && last.Content[0].Type == "tool_result" {
			last.Content = append(last.Content, block)
			return
		}
		c.turns = append(c.turns, anthropicTurn{Role: domain.RoleUser, Content: []anthropicBlock{block}})
	default:
		turn := anthropicTurn{Role: m.Role}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			turn.Content = append(turn.Content, anthropicBlock{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			turn.Content = append(turn.Content, anthropicBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: toolArguments(tc.Arguments),
			})
		}
		c.turns = append(c.turns, turn)
	}
}

func (c *anthropicConversation) last() *anthropicTurn {
	if len(c.turns) == 0 {
		return nil
	}
	return &c.turns[len(c.turns)-1]
}

func encodeAnthropic(req domain.ChatRequest) anthropicMessagesRequest {
	var conv anthropicConversation
	for _, m := range req.Messages {
		conv.add(m)
	}
	if wantsPrefill(req) {
		conv.turns = append(conv.turns, anthropicTurn{
			Role:    domain.RoleAssistant,
			Content: []anthropicBlock{{Type: "text", Text: jsonPrefill}},
		})
	}

	out := anthropicMessagesRequest{
		Model:     req.Model,
		System:    strings.Join(conv.system, "\n\n"),
		Messages:  conv.turns,
		MaxTokens: req.MaxTokens,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

func decodeAnthropic(resp anthropicReply, prefilled bool) *domain.ChatResponse {
	now := time.Now()
	msg := domain.Message{Role: domain.RoleAssistant, Timestamp: now}
	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	msg.Content = text.String()
	if prefilled && len(msg.ToolCalls) == 0 {
		msg.Content = jsonPrefill + msg.Content
	}

	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	return &domain.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Message: msg,
		Usage: domain.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		CreatedAt: now,
	}
}
