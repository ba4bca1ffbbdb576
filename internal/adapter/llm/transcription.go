package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
	"voice2action/internal/infra/tracer"
)

// maxAudioBytes is the upload limit of the hosted transcription endpoint.
const maxAudioBytes = 25 * 1024 * 1024

// WhisperTranscriber implements domain.Transcriber against an
// OpenAI-compatible /audio/transcriptions endpoint.
type WhisperTranscriber struct {
	model    string
	language string
	apiKey   string
	baseURL  string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[string]
	logger   *slog.Logger
}

var _ domain.Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a transcriber. Calls go through a circuit
// breaker configured by cb.
func NewWhisperTranscriber(cfg config.TranscriptionConfig, cb config.CircuitBreakerConfig, logger *slog.Logger) *WhisperTranscriber {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRespTimeout
	}

	return &WhisperTranscriber{
		model:    cfg.Model,
		language: cfg.Language,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		client: &http.Client{
			Transport: NewPooledTransport(defaultConnTimeout, timeout, config.PoolConfig{}),
			Timeout:   timeout,
		},
		breaker: newBreaker[string]("transcription:"+cfg.Model, cb, logger),
		logger:  logger,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the file at audioPath and returns the recognized text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "transcription.transcribe",
		trace.WithAttributes(
			tracer.StringAttr("transcription.model", w.model),
			tracer.StringAttr("transcription.file", filepath.Base(audioPath)),
		),
	)
	defer span.End()

	info, err := os.Stat(audioPath)
	if err != nil {
		tracer.RecordError(span, err)
		if os.IsNotExist(err) {
			return "", domain.NewSubSystemError("transcription", "Transcriber.Transcribe", domain.ErrAudioNotFound, audioPath)
		}
		return "", domain.WrapOp("Transcriber.Transcribe", err)
	}
	if info.Size() > maxAudioBytes {
		err := domain.NewSubSystemError("transcription", "Transcriber.Transcribe", domain.ErrInvalidInput,
			fmt.Sprintf("%s is %d bytes, limit is %d", audioPath, info.Size(), maxAudioBytes))
		tracer.RecordError(span, err)
		return "", err
	}

	start := time.Now()
	text, err := w.breaker.Execute(func() (string, error) {
		return w.upload(ctx, audioPath)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", &domain.DomainError{
			Op:        "Transcriber.Transcribe",
			Err:       fmt.Errorf("%w: %w", domain.ErrProviderError, breakerError("transcription", err)),
			Detail:    audioPath,
			SubSystem: "transcription",
		}
	}

	text = strings.TrimSpace(text)
	span.SetAttributes(tracer.IntAttr("transcription.chars", len(text)))
	tracer.SetOK(span)
	w.logger.Debug("transcription completed",
		"file", filepath.Base(audioPath),
		"chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

func (w *WhisperTranscriber) upload(ctx context.Context, audioPath string) (string, error) {
	body, contentType, err := w.encodeForm(audioPath)
	if err != nil {
		return "", err
	}

	respBody, err := doRequest(ctx, w.client, w.baseURL+"/audio/transcriptions", contentType, body, bearer(w.apiKey))
	if err != nil {
		return "", err
	}

	var resp transcriptionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Text, nil
}

func (w *WhisperTranscriber) encodeForm(audioPath string) (io.Reader, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}

	fields := map[string]string{
		"model":           w.model,
		"response_format": "json",
	}
	if w.language != "" {
		fields["language"] = w.language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
