//go:build integration
// +build integration

package integration

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/adapter/prompt"
	"voice2action/internal/usecase"
	"voice2action/internal/usecase/emailflow"
)

const openAIBaseURL = "https://api.openai.com/v1"

func TestE2E_VoiceCommandWithRealLLM(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")
	if cfg.AudioPath == "" {
		t.Skip("Skipping: VOICE2ACTION_TEST_AUDIO not set")
	}
	audio, err := filepath.Abs(cfg.AudioPath)
	require.NoError(t, err)

	ctx := NewTestContext(t, cfg.TestTimeout)
	s := newStackFor(t, openAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel)

	res, err := s.orch.Execute(ctx, audio)
	require.NoError(t, err)

	t.Logf("run %s: %d actions", res.RunID, len(res.Actions))
	for i, a := range res.Actions {
		t.Logf("  %d. [%s] %s", i+1, a.Agent, a.Action)
	}

	require.NotNil(t, res.Transcription, "transcript should be captured")
	assert.NotEmpty(t, *res.Transcription)
	assert.True(t, res.Completed(), "coordinator should finish within the iteration ceiling")
	assert.GreaterOrEqual(t, len(res.Actions), 3)
}

func TestE2E_SpamDetectionWithRealLLM(t *testing.T) {
	SkipIfShort(t)
	cfg := LoadConfig()
	SkipIfNoAPIKey(t, cfg.OpenAIKey, "OPENAI")
	if cfg.SkipSlow {
		t.Skip("Skipping slow test")
	}

	ctx := NewTestContext(t, cfg.TestTimeout)
	s := newStackFor(t, openAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel)

	text, err := s.prompts.Get(prompt.SpamDetection)
	require.NoError(t, err)
	detector, err := emailflow.NewAgentSpamDetector(usecase.NewToolAgent(usecase.ToolAgentDeps{
		Name:          "SpamDetector",
		Instructions:  text,
		LLM:           s.provider,
		MaxIterations: 1,
		Logger:        s.log,
	}))
	require.NoError(t, err)

	spam, err := detector.Detect(ctx, "CONGRATULATIONS!!! You won $1,000,000. Send your bank details to claim your PRIZE now.")
	require.NoError(t, err)
	assert.True(t, spam.IsSpam, "reason: %s", spam.Reason)

	ham, err := detector.Detect(ctx, "Hi, can we move our lunch from Wednesday to Thursday? Same place.")
	require.NoError(t, err)
	assert.False(t, ham.IsSpam, "reason: %s", ham.Reason)
}
