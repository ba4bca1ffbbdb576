package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
)

// Execute is the standard tool pipeline: parse params, start a span, run the
// handler and wrap the outcome in an envelope of type typ.
//
// The handler returns the envelope data on success. A returned error becomes
// an ok=false envelope whose code comes from domain.ErrorCodeOf.
func Execute[P any](
	ctx context.Context,
	spanName string,
	typ string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, bad := ParseParams[P](rawParams, typ)
	if bad != nil {
		tracer.RecordError(span, fmt.Errorf("%s", bad.Content))
		return bad, nil
	}

	data, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err, "code", domain.ErrorCodeOf(err))
		return &domain.ToolResult{
			IsError:     true,
			IsRetryable: classifyToolError(err),
			Content:     FailErr(err, typ),
		}, nil
	}

	tracer.SetOK(span)
	return &domain.ToolResult{Content: OK(typ, data)}, nil
}

// ParseParams unmarshals rawParams into P. Empty params decode as the zero
// value. On failure it returns an INVALID_INPUT envelope result.
func ParseParams[P any](rawParams json.RawMessage, typ string) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, &domain.ToolResult{
			IsError: true,
			Content: Fail(string(domain.CodeInvalidInput), fmt.Sprintf("invalid params: %v", err), typ),
		}
	}
	return p, nil
}

// invalid wraps a validation message as an ErrInvalidInput error for
// handlers.
func invalid(op string, err error) error {
	return domain.NewDomainError(op, domain.ErrInvalidInput, err.Error())
}
