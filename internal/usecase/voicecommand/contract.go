package voicecommand

import (
	"encoding/json"
	"strings"

	"voice2action/internal/domain"
)

// Coordinator actions.
const (
	ActionDelegate = "DELEGATE"
	ActionDone     = "DONE"
)

// ParseCoordinatorMessage interprets one coordinator response. It never
// fails: anything that is not a DONE or a complete DELEGATE decision is
// reported as DecisionMalformed. Field names match case-insensitively and
// surrounding whitespace is ignored.
func ParseCoordinatorMessage(raw string) (domain.CoordinatorMessage, domain.DecisionKind) {
	var msg domain.CoordinatorMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &msg); err != nil {
		return domain.CoordinatorMessage{}, domain.DecisionMalformed
	}

	switch {
	case strings.EqualFold(strings.TrimSpace(msg.Action), ActionDone):
		// A missing summary is an empty one.
		return msg, domain.DecisionDone
	case strings.EqualFold(strings.TrimSpace(msg.Action), ActionDelegate):
		if strings.TrimSpace(msg.Agent) == "" || strings.TrimSpace(msg.Task) == "" {
			return msg, domain.DecisionMalformed
		}
		return msg, domain.DecisionDelegate
	default:
		return msg, domain.DecisionMalformed
	}
}
