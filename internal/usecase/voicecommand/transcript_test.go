package voicecommand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTranscript(t *testing.T) {
	tests := []struct {
		name   string
		task   string
		output string
		want   string
		ok     bool
	}{
		{"envelope", "anything", `{"ok":true,"type":"Transcription","data":{"text":" remind me to call Bob "}}`, "remind me to call Bob", true},
		{"envelope type ignores case", "x", `{"ok":true,"type":"transcription","data":{"text":"hi"}}`, "hi", true},
		{"failed envelope", "Transcribe /a.wav", `{"ok":false,"type":"Transcription","error":{"code":"io","message":"nope"}}`, "", false},
		{"other envelope blocks fallback", "Transcribe /a.wav", `{"ok":true,"type":"DateTime","data":{"text":"x"}}`, "", false},
		{"envelope without text", "Transcribe", `{"ok":true,"type":"Transcription","data":{}}`, "", false},
		{"plain text on transcribe task", "TranscribeVoiceRecording(/a.wav)", "  call mom tomorrow\n", "call mom tomorrow", true},
		{"double quoted", "transcribe it", `"call mom"`, "call mom", true},
		{"double quoted with escapes", "transcribe it", `"line one\nline two"`, "line one\nline two", true},
		{"single quoted", "Transcribe", `'call mom'`, "call mom", true},
		{"only quotes", "Transcribe", `""`, "", false},
		{"mismatched quotes kept", "Transcribe", `"call mom'`, `"call mom'`, true},
		{"plain text on other task", "SetReminder(x)", "Reminder set", "", false},
		{"blank output", "Transcribe", "   ", "", false},
		{"json without ok is plain text", "Transcribe", `{"text":"hi"}`, `{"text":"hi"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractTranscript(tt.task, tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
