package voicecommand

import (
	"encoding/json"
	"strings"
)

const transcriptionType = "Transcription"

type toolEnvelope struct {
	OK   *bool           `json:"ok"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptionData struct {
	Text string `json:"text"`
}

// ExtractTranscript looks for a transcript in one worker turn.
//
// A successful tool envelope of type Transcription yields its data.text. Any
// other envelope (one carrying an "ok" flag) yields nothing. Otherwise, when
// the task mentions "transcribe" and the output is not blank, the trimmed
// output is used with one pair of surrounding quotes removed.
func ExtractTranscript(task, output string) (string, bool) {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "", false
	}

	if env, ok := parseEnvelope(trimmed); ok {
		if env.OK == nil || !*env.OK || !strings.EqualFold(env.Type, transcriptionType) {
			return "", false
		}
		var data transcriptionData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", false
		}
		text := strings.TrimSpace(data.Text)
		return text, text != ""
	}

	if !strings.Contains(strings.ToLower(task), "transcribe") {
		return "", false
	}
	text := strings.TrimSpace(unquote(trimmed))
	return text, text != ""
}

func parseEnvelope(s string) (toolEnvelope, bool) {
	if !strings.HasPrefix(s, "{") {
		return toolEnvelope{}, false
	}
	var env toolEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil || env.OK == nil {
		return toolEnvelope{}, false
	}
	return env, true
}

// unquote removes one pair of matching surrounding quotes. Double-quoted
// values are decoded as JSON string literals when possible so escapes such
// as \n come out as text.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first != last || (first != '"' && first != '\'') {
		return s
	}
	if first == '"' {
		var decoded string
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
	}
	return s[1 : len(s)-1]
}
