package voicecommand

import "strings"

// knownActions are checked before any advertised tool name, in this order.
var knownActions = []string{
	"Transcribe",
	"SetReminder",
	"SendEmail",
	"SendFallbackNotification",
	"GetCurrentDateTime",
}

// Classifier derives a diagnostic action tag from a delegated task's text.
// The tag only labels the action log; it never affects control flow.
type Classifier struct {
	vocabulary []string
}

// NewClassifier builds a Classifier that, after the built-in verbs, also
// recognizes the given tool names.
func NewClassifier(vocabulary []string) Classifier {
	seen := make(map[string]bool, len(knownActions)+len(vocabulary))
	var vocab []string
	for _, v := range append(append([]string{}, knownActions...), vocabulary...) {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		vocab = append(vocab, v)
	}
	return Classifier{vocabulary: vocab}
}

// Classify returns the first vocabulary entry found in task (ignoring case),
// or "Unknown".
func (c Classifier) Classify(task string) string {
	lower := strings.ToLower(task)
	vocab := c.vocabulary
	if vocab == nil {
		vocab = knownActions
	}
	for _, v := range vocab {
		if strings.Contains(lower, strings.ToLower(v)) {
			return v
		}
	}
	return "Unknown"
}
