package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
)

// DateTimeSource reports the current time as "LOCAL=...;UTC=...".
type DateTimeSource interface {
	Now() string
}

// DateTimeTool lets a worker resolve relative dates such as "tomorrow".
type DateTimeTool struct {
	source DateTimeSource
	logger *slog.Logger
}

func NewDateTimeTool(source DateTimeSource, logger *slog.Logger) *DateTimeTool {
	return &DateTimeTool{source: source, logger: logger}
}

func (t *DateTimeTool) Name() string { return "GetCurrentDateTime" }
func (t *DateTimeTool) Description() string {
	return "Return the current date/time to support normalization of relative or partial dates. " +
		"Format: LOCAL=yyyy-MM-ddTHH:mm:ss+hh:mm;UTC=yyyy-MM-ddTHH:mm:ssZ"
}

func (t *DateTimeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

// DateTimeData is the envelope data of GetCurrentDateTime.
type DateTimeData struct {
	Value string `json:"value"`
}

func (t *DateTimeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.datetime", TypeDateTime, t.logger, params,
		func(context.Context, trace.Span, struct{}) (any, error) {
			return DateTimeData{Value: t.source.Now()}, nil
		})
}
