package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"voice2action/internal/domain"
	"voice2action/internal/usecase/emailflow"
)

func TestRenderReport(t *testing.T) {
	transcript := "Remind me to submit the report on Friday."
	summary := "Reminder set for Friday."
	out := renderReport([]runOutcome{
		{
			Path: "/memos/friday.mp3",
			Result: &domain.OrchestrationResult{
				RunID:         "01J0RUN",
				Transcription: &transcript,
				Actions: []domain.AgentActionRecord{
					{Agent: "Planner", Action: "Plan", RawResult: `{"Action":"DELEGATE"}`},
					{Agent: "OfficeAutomation", Action: "SetReminder", RawResult: `{"ok":true}`},
				},
				Summary: &summary,
			},
		},
		{Path: "/memos/missing.mp3", Err: domain.NewDomainError("op", domain.ErrAudioNotFound, "missing")},
		{Path: "/memos/loop.mp3", Result: &domain.OrchestrationResult{RunID: "01J0LOOP"}},
	})

	assert.Contains(t, out, "/memos/friday.mp3")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, transcript)
	assert.Contains(t, out, "OfficeAutomation")
	assert.Contains(t, out, summary)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "AUDIO_NOT_FOUND")
	assert.Contains(t, out, "incomplete")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	got := truncate(strings.Repeat("x", 20), 8)
	assert.Equal(t, 8, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestRenderEmailOutcome(t *testing.T) {
	spam := renderEmailOutcome(&emailflow.Outcome{Spam: true, Reason: "lottery scam"})
	assert.Contains(t, spam, "quarantined")
	assert.Contains(t, spam, "lottery scam")

	reply := renderEmailOutcome(&emailflow.Outcome{
		Reply: "Lunch on Thursday works.",
		Email: &domain.EmailMessage{Subject: "Re: your message"},
	})
	assert.Contains(t, reply, "answered")
	assert.Contains(t, reply, "Re: your message")
	assert.Contains(t, reply, "Lunch on Thursday works.")
}
