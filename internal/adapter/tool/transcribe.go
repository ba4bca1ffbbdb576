package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/tracer"
)

// PathGuard resolves a requested file path, rejecting paths the tool may
// not read.
type PathGuard interface {
	ValidatePath(requested string) (string, error)
}

// TranscribeTool turns a recorded audio file into text.
type TranscribeTool struct {
	transcriber domain.Transcriber
	guard       PathGuard
	logger      *slog.Logger
}

func NewTranscribeTool(transcriber domain.Transcriber, logger *slog.Logger) *TranscribeTool {
	return &TranscribeTool{transcriber: transcriber, logger: logger}
}

// WithPathGuard restricts the files the tool will transcribe.
func (t *TranscribeTool) WithPathGuard(g PathGuard) *TranscribeTool {
	t.guard = g
	return t
}

func (t *TranscribeTool) Name() string { return "TranscribeVoiceRecording" }
func (t *TranscribeTool) Description() string {
	return "Transcribe the given audio file (mp3/wav/m4a) and return the raw text."
}

func (t *TranscribeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"audioPath": {"type": "string", "description": "Absolute path to the recording file."}
			},
			"required": ["audioPath"]
		}`),
	}
}

type transcribeParams struct {
	AudioPath string `json:"audioPath"`
}

// TranscriptionData is the envelope data of a successful transcription.
type TranscriptionData struct {
	Text      string `json:"text"`
	AudioPath string `json:"audioPath"`
}

func (t *TranscribeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.transcribe", TypeTranscription, t.logger, params,
		func(ctx context.Context, span trace.Span, p transcribeParams) (any, error) {
			const op = "TranscribeVoiceRecording"
			if err := RequireField("audioPath", p.AudioPath); err != nil {
				return nil, invalid(op, err)
			}
			path := filepath.Clean(strings.TrimSpace(p.AudioPath))
			if t.guard != nil {
				resolved, err := t.guard.ValidatePath(path)
				if err != nil {
					return nil, err
				}
				path = resolved
			}
			span.SetAttributes(tracer.StringAttr("audio.path", path))

			info, err := os.Stat(path)
			switch {
			case errors.Is(err, os.ErrNotExist):
				return nil, domain.NewDomainError(op, domain.ErrAudioNotFound, path)
			case err != nil:
				return nil, domain.WrapOp(op, err)
			case info.IsDir():
				return nil, domain.NewDomainError(op, domain.ErrInvalidInput, path+" is a directory")
			}

			text, err := t.transcriber.Transcribe(ctx, path)
			if err != nil {
				return nil, err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return nil, domain.NewDomainError(op, domain.ErrTranscriptionEmpty, path)
			}
			t.logger.Info("recording transcribed", "path", path, "chars", len(text))
			return TranscriptionData{Text: text, AudioPath: path}, nil
		})
}
