package tool

import (
	"encoding/json"
	"strings"

	"voice2action/internal/domain"
)

// Result types carried in the envelope "type" field.
const (
	TypeTranscription        = "Transcription"
	TypeDateTime             = "DateTime"
	TypeReminder             = "Reminder"
	TypeEmail                = "Email"
	TypeFallbackNotification = "FallbackNotification"
)

// Envelope is the JSON shape every worker tool returns:
//
//	{"ok":true,"type":"Reminder","data":{...}}
//	{"ok":false,"type":"Reminder","error":{"code":"INVALID_INPUT","message":"..."}}
type Envelope struct {
	OK    bool           `json:"ok"`
	Type  string         `json:"type,omitempty"`
	Data  any            `json:"data,omitempty"`
	Error *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError describes a failed tool call.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK renders a success envelope.
func OK(typ string, data any) string {
	return encode(Envelope{OK: true, Type: typ, Data: data})
}

// Fail renders an error envelope. typ may be empty.
func Fail(code, message, typ string) string {
	return encode(Envelope{Type: typ, Error: &EnvelopeError{Code: code, Message: message}})
}

// FailErr renders err as an error envelope, using its domain error code.
func FailErr(err error, typ string) string {
	return Fail(string(domain.ErrorCodeOf(err)), err.Error(), typ)
}

func encode(e Envelope) string {
	data, err := json.Marshal(e)
	if err != nil {
		return `{"ok":false,"error":{"code":"ENCODE","message":` + quote(err.Error()) + `}}`
	}
	return string(data)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// DecodeEnvelope parses s as an envelope. It reports false for text that is
// not a JSON object carrying an "ok" field.
func DecodeEnvelope(s string) (*Envelope, json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, nil, false
	}
	var raw struct {
		OK    *bool           `json:"ok"`
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error *EnvelopeError  `json:"error"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw.OK == nil {
		return nil, nil, false
	}
	return &Envelope{OK: *raw.OK, Type: raw.Type, Error: raw.Error}, raw.Data, true
}
