package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice2action/internal/domain"
	"voice2action/internal/infra/config"
)

func writeAudio(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer stt-key", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "json", r.FormValue("response_format"))
		assert.Equal(t, "en", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "memo.mp3", hdr.Filename)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "ID3-fake-audio", string(data))
		}
		_, _ = io.WriteString(w, `{"text":"  Remind me to call Bob tomorrow at 9.\n"}`)
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(config.TranscriptionConfig{
		BaseURL:  server.URL,
		APIKey:   "stt-key",
		Model:    "whisper-1",
		Language: "en",
		Timeout:  5 * time.Second,
	}, config.CircuitBreakerConfig{}, newTestLogger())

	text, err := tr.Transcribe(context.Background(), writeAudio(t, "memo.mp3", []byte("ID3-fake-audio")))
	require.NoError(t, err)
	assert.Equal(t, "Remind me to call Bob tomorrow at 9.", text)
}

func TestWhisperTranscribeMissingFile(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer server.Close()

	tr := NewWhisperTranscriber(config.TranscriptionConfig{BaseURL: server.URL, Model: "m"}, config.CircuitBreakerConfig{}, newTestLogger())
	_, err := tr.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAudioNotFound)
	assert.Zero(t, hits.Load())
}

func TestWhisperTranscribeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "overloaded")
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(config.TranscriptionConfig{BaseURL: server.URL, Model: "m"}, config.CircuitBreakerConfig{}, newTestLogger())
	_, err := tr.Transcribe(context.Background(), writeAudio(t, "a.wav", []byte("RIFF")))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.Equal(t, domain.CodeTranscriptionProvider, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "API error 503")
}

func TestWhisperTranscribeBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(config.TranscriptionConfig{BaseURL: server.URL, Model: "m"},
		config.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute}, newTestLogger())
	path := writeAudio(t, "a.wav", []byte("RIFF"))

	for range 4 {
		_, err := tr.Transcribe(context.Background(), path)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}
