package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Builtins(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{Coordinator, EmailDraft, OfficeAutomation, SpamDetection, Utility}, lib.Names())
	assert.Equal(t, "builtin", lib.Source(Utility))
}

func TestCoordinatorTemplate_IsGeneric(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	text := lib.MustGet(Coordinator)

	assert.Contains(t, text, "You are the Orchestrator")
	assert.Contains(t, text, CatalogPlaceholder)
	assert.Contains(t, text, "INTERMEDIATE (context gathering")
	assert.Contains(t, text, "TERMINAL (state / effect producing")
	for _, name := range []string{"SetReminder", "SendEmail", "SendFallbackNotification", "TranscribeVoiceRecording", "GetCurrentDateTime"} {
		assert.NotContains(t, text, name)
	}
}

func TestWorkerTemplates_AreToolOnly(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)

	tests := map[string][]string{
		Utility:          {"TranscribeVoiceRecording", "GetCurrentDateTime"},
		OfficeAutomation: {"SetReminder", "SendEmail", "SendFallbackNotification"},
	}
	for name, tools := range tests {
		text := lib.MustGet(name)
		for _, tool := range tools {
			assert.Contains(t, text, tool, name)
		}
		assert.Contains(t, text, "CANNOT:", name)
		lower := strings.ToLower(text)
		assert.NotContains(t, lower, " delegate this", name)
		assert.NotContains(t, lower, " plan the", name)
	}
}

func TestLoad_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "utility.md"), []byte("custom utility"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	lib, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom utility", lib.MustGet(Utility))
	assert.Equal(t, filepath.Join(dir, "utility.md"), lib.Source(Utility))
	assert.Equal(t, "builtin", lib.Source(OfficeAutomation))
}

func TestLoad_CoordinatorOverrideNeedsPlaceholder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coordinator-template.md"), []byte("no catalog here"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), CatalogPlaceholder)
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestGet_Unknown(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	_, err = lib.Get("missing")
	assert.Error(t, err)
}
