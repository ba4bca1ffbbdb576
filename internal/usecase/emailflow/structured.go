package emailflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"voice2action/internal/domain"
)

const detectionSchema = `{
  "type": "object",
  "properties": {
    "is_spam": {"type": "boolean"},
    "reason": {"type": "string"}
  },
  "required": ["is_spam", "reason"]
}`

const draftSchema = `{
  "type": "object",
  "properties": {
    "response": {"type": "string", "minLength": 1}
  },
  "required": ["response"]
}`

// structuredAgent runs a TextAgent whose reply must be a JSON object matching
// a schema.
type structuredAgent struct {
	agent  domain.TextAgent
	schema *jsonschema.Schema
}

func newStructuredAgent(agent domain.TextAgent, schema string) (*structuredAgent, error) {
	compiled, err := jsonschema.NewCompiler().Compile([]byte(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", agent.Name(), err)
	}
	return &structuredAgent{agent: agent, schema: compiled}, nil
}

func (s *structuredAgent) run(ctx context.Context, input string, out any) error {
	op := s.agent.Name() + ".Run"
	reply, err := s.agent.Run(ctx, input)
	if err != nil {
		return domain.WrapOp(op, err)
	}
	raw := stripCodeFences(reply)
	if raw == "" {
		return domain.NewDomainError(op, domain.ErrProviderError, "empty reply")
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.NewDomainError(op, domain.ErrProviderError, fmt.Sprintf("reply is not JSON: %v", err))
	}
	if result := s.schema.Validate(parsed); !result.IsValid() {
		return domain.NewDomainError(op, domain.ErrProviderError, fmt.Sprintf("reply does not match schema: %s", result.Error()))
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return domain.NewDomainError(op, domain.ErrProviderError, err.Error())
	}
	return nil
}

var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// AgentSpamDetector asks an agent for a {"is_spam","reason"} verdict.
type AgentSpamDetector struct {
	s *structuredAgent
}

var _ domain.SpamDetector = (*AgentSpamDetector)(nil)

func NewAgentSpamDetector(agent domain.TextAgent) (*AgentSpamDetector, error) {
	s, err := newStructuredAgent(agent, detectionSchema)
	if err != nil {
		return nil, err
	}
	return &AgentSpamDetector{s: s}, nil
}

func (d *AgentSpamDetector) Detect(ctx context.Context, text string) (*domain.DetectionResult, error) {
	var res domain.DetectionResult
	if err := d.s.run(ctx, text, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AgentEmailDrafter asks an agent for a {"response"} reply draft.
type AgentEmailDrafter struct {
	s *structuredAgent
}

var _ domain.EmailDrafter = (*AgentEmailDrafter)(nil)

func NewAgentEmailDrafter(agent domain.TextAgent) (*AgentEmailDrafter, error) {
	s, err := newStructuredAgent(agent, draftSchema)
	if err != nil {
		return nil, err
	}
	return &AgentEmailDrafter{s: s}, nil
}

func (d *AgentEmailDrafter) Draft(ctx context.Context, text string) (*domain.EmailResponse, error) {
	var res domain.EmailResponse
	if err := d.s.run(ctx, text, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
