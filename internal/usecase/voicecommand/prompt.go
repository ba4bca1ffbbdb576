package voicecommand

import (
	"encoding/json"
	"fmt"
	"strings"

	"voice2action/internal/domain"
)

// DefaultGuidance tells the coordinator how to pick its next step.
const DefaultGuidance = "Decide next step. If a reminder or email can be created based on the transcript, " +
	"delegate to OfficeAutomation with an explicit SetReminder or SendEmail task including extracted task, " +
	"due date, optional reminder date. Otherwise gather missing info or DONE with summary."

// CorrectivePrompt is sent after a response that is not a valid decision.
const CorrectivePrompt = `Malformed response. Reissue your decision as minified JSON in the required shape: ` +
	`{"Action":"DELEGATE|DONE","Agent":"<when delegating>","Task":"<instruction when delegating>","Summary":"<when done>"}`

// SeedPrompt is the first coordinator input for an audio file.
func SeedPrompt(absAudioPath string) string {
	return "process voice recording in file " + absAudioPath
}

// responseShape documents the decision format inside every context prompt.
var responseShape = struct {
	Action  string
	Agent   string
	Task    string
	Summary string
}{
	Action:  "DELEGATE|DONE",
	Agent:   "<when delegating>",
	Task:    "<instruction when delegating>",
	Summary: "<when done>",
}

type contextAction struct {
	Agent     string
	Action    string
	RawResult string
}

type contextPrompt struct {
	Transcript        *string
	Actions           []contextAction
	Guidance          string
	RepetitionWarning string `json:",omitempty"`
	RequiredResponse  any
}

// BuildContextPrompt serializes the coordinator's view of the run.
func BuildContextPrompt(transcript *string, actions []domain.AgentActionRecord, guidance, warning string) string {
	ctx := contextPrompt{
		Transcript:        transcript,
		Actions:           make([]contextAction, len(actions)),
		Guidance:          guidance,
		RepetitionWarning: warning,
		RequiredResponse:  responseShape,
	}
	for i, a := range actions {
		ctx.Actions[i] = contextAction(a)
	}
	// Only strings and string pointers are marshalled, so this cannot fail.
	data, _ := json.Marshal(ctx)
	return string(data)
}

// repetitionWarning is appended to the context once the coordinator has
// proposed the same delegation several turns in a row.
func repetitionWarning(agent string, times int) string {
	return fmt.Sprintf("You have delegated the same task to %s %d times in a row without new information. "+
		"Either change tool or instruction, or reply DONE with a summary.", agent, times)
}

// repeatGuard tracks how many consecutive coordinator turns proposed the
// same delegation. Any other decision resets the streak.
type repeatGuard struct {
	threshold int
	lastKey   string
	streak    int
}

func newRepeatGuard(threshold int) *repeatGuard {
	return &repeatGuard{threshold: threshold}
}

// observe records one coordinator decision and reports whether the
// repetition threshold has been reached.
func (g *repeatGuard) observe(msg domain.CoordinatorMessage, kind domain.DecisionKind) bool {
	if kind != domain.DecisionDelegate {
		g.lastKey, g.streak = "", 0
		return false
	}
	key := strings.ToLower(strings.TrimSpace(msg.Agent)) + "\x00" + normalizeTask(msg.Task)
	if key == g.lastKey {
		g.streak++
	} else {
		g.lastKey, g.streak = key, 1
	}
	return g.threshold > 0 && g.streak >= g.threshold
}

func normalizeTask(task string) string {
	return strings.Join(strings.Fields(strings.ToLower(task)), " ")
}
