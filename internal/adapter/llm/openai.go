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

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
// JSON response mode maps to response_format {"type":"json_object"}.
type OpenAIProvider struct {
	endpoint chatEndpoint
}

// NewOpenAIProvider builds a provider for cfg. An empty base URL targets
// api.openai.com.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{endpoint: chatEndpoint{
		provider: cfg.Name,
		model:    cfg.Model,
		url:      base + "/chat/completions",
		headers:  bearer(cfg.APIKey),
		client:   NewHTTPClient(cfg),
		logger:   logger,
	}}
}

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return exchange(ctx, p.endpoint, req, encodeOpenAI, decodeOpenAI)
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.endpoint.provider }

type openaiCompletionRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiTurn          `json:"messages"`
	Tools          []openaiFunctionDecl  `json:"tools,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiTurn struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	Name       string              `json:"name,omitempty"`
	ToolCalls  []openaiFunctionUse `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// openaiFunction covers both a declared tool and a call to one; the API
// nests either under "function".
type openaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Arguments   string          `json:"arguments,omitempty"`
}

type openaiFunctionDecl struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunctionUse struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiCompletion struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Message openaiTurn `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func encodeOpenAI(req domain.ChatRequest) openaiCompletionRequest {
	out := openaiCompletionRequest{
		Model:     req.Model,
		Messages:  make([]openaiTurn, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	if req.ResponseFormat == domain.ResponseJSON {
		out.ResponseFormat = &openaiResponseFormat{Type: string(domain.ResponseJSON)}
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openaiTurnFrom(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiFunctionDecl{
			Type:     "function",
			Function: openaiFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	return out
}

func openaiTurnFrom(m domain.Message) openaiTurn {
	turn := openaiTurn{Role: m.Role, Content: m.Content, Name: m.Name}
	if m.Role == domain.RoleTool {
		turn.ToolCallID = toolCallID(m)
		return turn
	}
	for _, tc := range m.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, openaiFunctionUse{
			ID:       tc.ID,
			Type:     "function",
			Function: openaiFunction{Name: tc.Name, Arguments: string(toolArguments(tc.Arguments))},
		})
	}
	return turn
}

func decodeOpenAI(resp openaiCompletion) (*domain.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, domain.NewDomainError("OpenAIProvider.Chat", domain.ErrProviderError, "response has no choices")
	}
	created := time.Unix(resp.Created, 0)
	reply := resp.Choices[0].Message

	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		Name:      reply.Name,
		Timestamp: created,
	}
	for _, tc := range reply.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}

	return &domain.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Message: msg,
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: created,
	}, nil
}
