package voicecommand

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"voice2action/internal/domain"
)

func TestParseCoordinatorMessage(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		kind  domain.DecisionKind
		agent string
		task  string
	}{
		{"delegate", `{"Action":"DELEGATE","Agent":"Utility","Task":"Transcribe /a.wav"}`, domain.DecisionDelegate, "Utility", "Transcribe /a.wav"},
		{"lowercase keys and action", `  {"action":"delegate","agent":"Office","task":"SendEmail"} `, domain.DecisionDelegate, "Office", "SendEmail"},
		{"done", `{"Action":"DONE","Summary":"ok"}`, domain.DecisionDone, "", ""},
		{"done without summary", `{"Action":"Done"}`, domain.DecisionDone, "", ""},
		{"delegate missing agent", `{"Action":"DELEGATE","Task":"x"}`, domain.DecisionMalformed, "", "x"},
		{"delegate blank task", `{"Action":"DELEGATE","Agent":"A","Task":"  "}`, domain.DecisionMalformed, "A", "  "},
		{"unknown action", `{"Action":"WAIT"}`, domain.DecisionMalformed, "", ""},
		{"prose", `I will delegate to Utility now.`, domain.DecisionMalformed, "", ""},
		{"fenced json", "```json\n{\"Action\":\"DONE\"}\n```", domain.DecisionMalformed, "", ""},
		{"array", `[{"Action":"DONE"}]`, domain.DecisionMalformed, "", ""},
		{"empty", ``, domain.DecisionMalformed, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, kind := ParseCoordinatorMessage(tt.raw)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.agent, msg.Agent)
			assert.Equal(t, tt.task, msg.Task)
		})
	}
}

func TestParseCoordinatorMessage_Summary(t *testing.T) {
	msg, kind := ParseCoordinatorMessage(`{"Action":"DONE","Summary":"Reminder set for Friday."}`)
	assert.Equal(t, domain.DecisionDone, kind)
	assert.Equal(t, "Reminder set for Friday.", msg.Summary)
}

func TestParseCoordinatorMessage_FencedDoneIsMalformed(t *testing.T) {
	msg, kind := ParseCoordinatorMessage("```json\n{\"Action\":\"DONE\",\"Summary\":\"x\"}\n```")
	assert.Equal(t, domain.DecisionMalformed, kind)
	assert.Empty(t, msg.Summary)
}
