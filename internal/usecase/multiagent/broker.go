package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
	"voice2action/internal/usecase/eventbus"
)

// DelegateRequest represents one coordinator-to-worker delegation.
type DelegateRequest struct {
	RunID     string `json:"run_id"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
	Task      string `json:"task"`
}

// DelegateResponse is the result of a delegation.
type DelegateResponse struct {
	// Agent is the resolved worker name, or the requested name when no
	// worker matched.
	Agent    string        `json:"agent"`
	Content  string        `json:"content"`
	Found    bool          `json:"found"`
	Duration time.Duration `json:"duration"`
}

type delegationEvent struct {
	DelegateRequest
	Found    bool   `json:"found"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// Broker dispatches delegations to registered workers.
type Broker struct {
	registry *Registry
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewBroker creates a Broker. bus may be nil.
func NewBroker(registry *Registry, bus domain.EventBus, logger *slog.Logger) *Broker {
	return &Broker{
		registry: registry,
		bus:      bus,
		logger:   logger,
	}
}

// Registry returns the worker registry the broker dispatches to.
func (b *Broker) Registry() *Registry { return b.registry }

// Delegate runs req.Task on the named worker. An unregistered name is not an
// error: the response carries the UNKNOWN_AGENT sentinel with Found=false.
// Worker failures are returned wrapped with ErrWorkerFailed.
func (b *Broker) Delegate(ctx context.Context, req DelegateRequest) (*DelegateResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "multiagent.delegate")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("agent.from", req.FromAgent),
		tracer.StringAttr("agent.to", req.ToAgent),
	)

	worker, ok := b.registry.Lookup(req.ToAgent)
	if !ok {
		b.logger.Warn("delegation to unknown agent", "run_id", req.RunID, "to", req.ToAgent)
		span.SetAttributes(tracer.BoolAttr("agent.found", false))
		b.publish(ctx, req, false, nil, 0)
		return &DelegateResponse{
			Agent:   req.ToAgent,
			Content: domain.UnknownAgentPrefix + req.ToAgent,
		}, nil
	}

	b.logger.Info("delegating",
		"run_id", req.RunID,
		"from", req.FromAgent,
		"to", worker.Name(),
	)

	start := time.Now()
	out, err := worker.Run(ctx, req.Task)
	elapsed := time.Since(start)
	b.publish(ctx, req, true, err, elapsed)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, &domain.DomainError{
			Op:        "Broker.Delegate",
			Err:       fmt.Errorf("%w: %w", domain.ErrWorkerFailed, err),
			Detail:    worker.Name(),
			SubSystem: "agent",
		}
	}
	tracer.SetOK(span)

	return &DelegateResponse{
		Agent:    worker.Name(),
		Content:  out,
		Found:    true,
		Duration: elapsed,
	}, nil
}

func (b *Broker) publish(ctx context.Context, req DelegateRequest, found bool, err error, d time.Duration) {
	ev := delegationEvent{DelegateRequest: req, Found: found, Duration: d.String()}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Emit(ctx, b.bus, domain.EventAgentDelegated, req.RunID, ev)
}
