package voicecommand

import "voice2action/internal/domain"

// resultBuilder owns the mutable state of one run. The action log only grows
// and the transcript is written at most once.
type resultBuilder struct {
	runID      string
	audioPath  string
	transcript *string
	actions    []domain.AgentActionRecord
	summary    *string
}

func newResultBuilder(runID, audioPath string) *resultBuilder {
	return &resultBuilder{runID: runID, audioPath: audioPath}
}

func (b *resultBuilder) append(rec domain.AgentActionRecord) {
	b.actions = append(b.actions, rec)
}

func (b *resultBuilder) hasTranscript() bool { return b.transcript != nil }

// captureTranscript stores text unless a transcript was already captured.
func (b *resultBuilder) captureTranscript(text string) bool {
	if b.transcript != nil {
		return false
	}
	b.transcript = &text
	return true
}

func (b *resultBuilder) finish(summary string) {
	b.summary = &summary
}

// snapshot returns a copy that shares no mutable state with the builder.
func (b *resultBuilder) snapshot() *domain.OrchestrationResult {
	res := &domain.OrchestrationResult{
		RunID:     b.runID,
		AudioPath: b.audioPath,
		Actions:   make([]domain.AgentActionRecord, len(b.actions)),
	}
	copy(res.Actions, b.actions)
	if b.transcript != nil {
		t := *b.transcript
		res.Transcription = &t
	}
	if b.summary != nil {
		s := *b.summary
		res.Summary = &s
	}
	return res
}
