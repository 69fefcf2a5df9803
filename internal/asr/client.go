// Package asr provides the speech recognition adapter: it extracts a mono
// WAV track from a media file and sends it to an HTTP transcription engine
// that returns word-level timings.
package asr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/shortsgen-api/internal/audio"
	"github.com/maauso/shortsgen-api/internal/httpretry"
	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// ErrNoSpeech is returned when the engine recognizes no words.
var ErrNoSpeech = errors.New("asr: no words recognized")

// compile-time interface check
var _ pipeline.Transcriber = (*Client)(nil)

type transcribeRequest struct {
	AudioBase64    string `json:"audio_base64"`
	Language       string `json:"language,omitempty"`
	WordTimestamps bool   `json:"word_timestamps"`
}

type transcribeResponse struct {
	Text     string          `json:"text"`
	Language string          `json:"language"`
	Words    []pipeline.Word `json:"words"`
}

// Client implements pipeline.Transcriber against a transcription engine.
type Client struct {
	http      *httpretry.Client
	extractor audio.Extractor
	language  string
}

// Option configures a Client.
type Option func(*Client)

// WithLanguage pins the recognition language instead of auto-detection.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// NewClient creates a Client that extracts audio with extractor and posts
// it to the engine behind hc.
func NewClient(hc *httpretry.Client, extractor audio.Extractor, opts ...Option) *Client {
	c := &Client{
		http:      hc,
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe implements pipeline.Transcriber. The extracted WAV is written
// next to mediaPath and removed afterwards.
func (c *Client) Transcribe(ctx context.Context, mediaPath string) (pipeline.Transcript, error) {
	wavPath := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".asr.wav"
	if err := c.extractor.ExtractWav(ctx, mediaPath, wavPath); err != nil {
		return pipeline.Transcript{}, fmt.Errorf("asr: extract audio: %w", err)
	}
	defer func() { _ = os.Remove(wavPath) }()

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return pipeline.Transcript{}, fmt.Errorf("asr: read audio: %w", err)
	}

	req := transcribeRequest{
		AudioBase64:    base64.StdEncoding.EncodeToString(data),
		Language:       c.language,
		WordTimestamps: true,
	}

	var resp transcribeResponse
	if err := c.http.Do(ctx, http.MethodPost, "/v1/transcribe", req, &resp); err != nil {
		return pipeline.Transcript{}, err
	}

	words := make([]pipeline.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return pipeline.Transcript{}, &pipeline.StageError{
			Kind:   pipeline.KindEmpty,
			Detail: ErrNoSpeech.Error(),
			Err:    ErrNoSpeech,
		}
	}

	return pipeline.Transcript{
		Language: resp.Language,
		Text:     resp.Text,
		Words:    words,
	}, nil
}
