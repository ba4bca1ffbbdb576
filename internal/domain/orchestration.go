package domain

import "context"

// Reserved action tags written into the action log.
const (
	ActionPlan    = "Plan"
	ActionUnknown = "Unknown"
)

// UnknownAgentPrefix prefixes the synthetic worker output recorded when the
// coordinator addresses a name that is not registered.
const UnknownAgentPrefix = "UNKNOWN_AGENT:"

// WorkerErrorPrefix prefixes the synthetic worker output recorded when a worker
// call fails and the orchestrator is configured to keep going.
const WorkerErrorPrefix = "WORKER_ERROR:"

// TextAgent is the single capability shared by the coordinator and every worker:
// given one input string, produce one output string.
type TextAgent interface {
	Name() string
	// Capabilities are free-form tags such as "SetReminder(task, dueDate, reminderDate?)".
	// They are advertised to the coordinator and never used for routing.
	Capabilities() []string
	Run(ctx context.Context, input string) (string, error)
}

// AgentSet pairs one coordinator with an ordered list of workers.
type AgentSet struct {
	Coordinator TextAgent
	Workers     []TextAgent
}

// AgentSetProvider builds the agents used by one orchestration session.
type AgentSetProvider interface {
	AgentSet(ctx context.Context) (*AgentSet, error)
}

// AgentActionRecord is one entry of the orchestration audit trail.
type AgentActionRecord struct {
	Agent     string `json:"agent"`
	Action    string `json:"action"`
	RawResult string `json:"raw_result"`
}

// DecisionKind is the outcome of interpreting one coordinator response.
type DecisionKind int

const (
	DecisionMalformed DecisionKind = iota
	DecisionDelegate
	DecisionDone
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionDelegate:
		return "delegate"
	case DecisionDone:
		return "done"
	default:
		return "malformed"
	}
}

// CoordinatorMessage is the decoded planner decision.
type CoordinatorMessage struct {
	Action  string `json:"Action"`
	Agent   string `json:"Agent,omitempty"`
	Task    string `json:"Task,omitempty"`
	Summary string `json:"Summary,omitempty"`
}

// OrchestrationResult is the outcome of one voice-command run. A nil Summary
// means the run did not complete: it was aborted at the iteration ceiling or
// cancelled.
type OrchestrationResult struct {
	RunID         string              `json:"run_id"`
	AudioPath     string              `json:"audio_path"`
	Transcription *string             `json:"transcription"`
	Actions       []AgentActionRecord `json:"actions"`
	Summary       *string             `json:"summary"`
}

// Completed reports whether the coordinator declared the run done.
func (r *OrchestrationResult) Completed() bool {
	return r != nil && r.Summary != nil
}

// VoiceCommandOrchestrator drives the delegation loop for one audio file.
type VoiceCommandOrchestrator interface {
	Execute(ctx context.Context, audioPath string) (*OrchestrationResult, error)
}
