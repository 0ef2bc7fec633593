package voice

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/deskclaw/deskclaw/config"
)

// Recognizer turns a WAV utterance into text.
type Recognizer interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// APIRecognizer recognizes speech through an OpenAI-compatible transcription
// endpoint.
type APIRecognizer struct {
	client   openai.Client
	model    string
	language string
}

// NewAPIRecognizer builds a recognizer from the asr config section.
func NewAPIRecognizer(cfg config.ASRConfig) (*APIRecognizer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("voice: asr base_url not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("voice: asr model not configured")
	}

	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &APIRecognizer{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

// Transcribe implements Recognizer.
func (r *APIRecognizer) Transcribe(ctx context.Context, wav []byte) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(r.model),
		File:  openai.File(bytes.NewReader(wav), "speech.wav", "audio/wav"),
	}
	if r.language != "" {
		params.Language = openai.String(r.language)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("voice: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
