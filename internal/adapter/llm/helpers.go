package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from model APIs.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// defaultMaxTokens is sent to APIs that require an output cap.
const defaultMaxTokens = 4096

// jsonPrefill opens the assistant turn for providers without a native JSON
// mode. The model continues from it, so the prefix is added back to the reply.
const jsonPrefill = "{"

// chatEndpoint is one HTTP chat API and the credentials it expects.
type chatEndpoint struct {
	provider string
	model    string
	url      string
	headers  map[string]string
	client   *http.Client
	logger   *slog.Logger
}

// exchange runs one chat round trip: encode req in the provider's wire shape,
// POST it, and decode the provider's reply.
func exchange[In, Out any](
	ctx context.Context,
	ep chatEndpoint,
	req domain.ChatRequest,
	encode func(domain.ChatRequest) In,
	decode func(Out) (*domain.ChatResponse, error),
) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = ep.model
	}
	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", ep.provider),
			tracer.StringAttr("llm.model", req.Model),
			tracer.StringAttr("llm.response_format", formatName(req.ResponseFormat)),
		),
	)
	defer span.End()

	body, err := json.Marshal(encode(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	raw, err := doJSONRequest(ctx, ep.client, ep.url, body, ep.headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var wire Out
	if err := json.Unmarshal(raw, &wire); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	result, err := decode(wire)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(ep.logger, ep.provider, result)
	return result, nil
}

func formatName(f domain.ResponseFormat) string {
	if f == domain.ResponseText {
		return "text"
	}
	return string(f)
}

// wantsPrefill reports whether req asks for JSON and the conversation ends on
// a turn the model has not started answering.
func wantsPrefill(req domain.ChatRequest) bool {
	if req.ResponseFormat != domain.ResponseJSON {
		return false
	}
	n := len(req.Messages)
	return n > 0 && req.Messages[n-1].Role != domain.RoleAssistant
}

// toolCallID returns the call a tool result answers. Tool messages carry it
// as their only ToolCall.
func toolCallID(m domain.Message) string {
	if len(m.ToolCalls) > 0 {
		return m.ToolCalls[0].ID
	}
	return ""
}

// toolArguments substitutes an empty object for missing call arguments.
func toolArguments(args json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(args)) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

// doJSONRequest performs a JSON POST request and returns the response body.
// Non-200 responses are mapped to domain errors by mapHTTPError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	return doRequest(ctx, client, url, "application/json", bytes.NewReader(body), headers)
}

func doRequest(ctx context.Context, client *http.Client, url, contentType string, body io.Reader, headers map[string]string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(httpResp.StatusCode, respBody)
	}

	return respBody, nil
}

func bearer(apiKey string) map[string]string {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return headers
}

func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
}

func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError maps an HTTP status code and response body to a domain error.
// The "API error <status>:" prefix is what the agent's error classifier keys on.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, string(body))

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", domain.ErrContextOverflow, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrProviderError, detail)
	default:
		return fmt.Errorf("%s", detail)
	}
}
