package asr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maauso/shortsgen-api/internal/httpretry"
	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// stubExtractor writes fixed bytes instead of running ffmpeg.
type stubExtractor struct {
	data []byte
	err  error
	dst  string
}

func (s *stubExtractor) ExtractWav(_ context.Context, _, dst string) error {
	s.dst = dst
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(dst, s.data, 0600)
}

func newClient(t *testing.T, url string, ex *stubExtractor, opts ...Option) *Client {
	t.Helper()
	hc, err := httpretry.New(url, httpretry.WithAPIKey("asr-key"), httpretry.WithBaseBackoff(10*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewClient(hc, ex, opts...)
}

func mediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, []byte("video"), 0600); err != nil {
		t.Fatalf("failed to write media: %v", err)
	}
	return path
}

func TestTranscribe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("expected /v1/transcribe, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer asr-key" {
			t.Errorf("unexpected Authorization header %q", r.Header.Get("Authorization"))
		}

		var req transcribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		audio, _ := base64.StdEncoding.DecodeString(req.AudioBase64)
		if string(audio) != "RIFF" {
			t.Errorf("expected extracted audio, got %q", audio)
		}
		if !req.WordTimestamps {
			t.Error("expected word timestamps to be requested")
		}
		if req.Language != "es" {
			t.Errorf("expected language es, got %q", req.Language)
		}

		_, _ = w.Write([]byte(`{"text":"hola mundo","language":"es","words":[
			{"word":"hola","start":0.1,"end":0.4},
			{"word":" ","start":0.4,"end":0.5},
			{"word":"mundo","start":0.5,"end":0.9}]}`))
	}))
	defer server.Close()

	ex := &stubExtractor{data: []byte("RIFF")}
	c := newClient(t, server.URL, ex, WithLanguage("es"))

	tr, err := c.Transcribe(context.Background(), mediaFile(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(tr.Words))
	}
	if tr.Words[1].Text != "mundo" || tr.Words[1].End != 0.9 {
		t.Errorf("unexpected word %+v", tr.Words[1])
	}
	if tr.Language != "es" {
		t.Errorf("expected language es, got %q", tr.Language)
	}
	if _, err := os.Stat(ex.dst); !os.IsNotExist(err) {
		t.Error("expected extracted wav to be removed")
	}
}

func TestTranscribe_NoSpeech(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"","words":[]}`))
	}))
	defer server.Close()

	c := newClient(t, server.URL, &stubExtractor{data: []byte("RIFF")})

	_, err := c.Transcribe(context.Background(), mediaFile(t))

	var se *pipeline.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if se.Kind != pipeline.KindEmpty {
		t.Errorf("expected kind %q, got %q", pipeline.KindEmpty, se.Kind)
	}
	if !errors.Is(err, ErrNoSpeech) {
		t.Error("expected ErrNoSpeech in chain")
	}
}

func TestTranscribe_ExtractFailure(t *testing.T) {
	boom := errors.New("no audio stream")
	c := newClient(t, "http://unused.local", &stubExtractor{err: boom})

	_, err := c.Transcribe(context.Background(), mediaFile(t))
	if !errors.Is(err, boom) {
		t.Errorf("expected extractor error, got %v", err)
	}
}

func TestTranscribe_EngineFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	c := newClient(t, server.URL, &stubExtractor{data: []byte("RIFF")})

	_, err := c.Transcribe(context.Background(), mediaFile(t))
	if !errors.Is(err, httpretry.ErrRequestFailed) {
		t.Errorf("expected ErrRequestFailed, got %v", err)
	}
}
