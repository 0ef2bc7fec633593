package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/deskclaw/deskclaw/config"
)

const remoteDefaultVoice = "alloy"

// players are probed in order for WAV playback of remote synthesis output.
var players = []string{"afplay", "paplay", "aplay", "ffplay", "mpv"}

// RemoteEngine synthesizes through an OpenAI-compatible speech endpoint and
// plays the result with whichever audio player is installed.
type RemoteEngine struct {
	client openai.Client
	model  string
	voice  string
	ready  bool

	// play is swappable so tests can intercept the synthesized audio.
	play func(ctx context.Context, path string) error

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewRemoteEngine builds the endpoint client from the tts config section.
func NewRemoteEngine(cfg config.TTSConfig) *RemoteEngine {
	voice := cfg.Voice
	if voice == "" {
		voice = remoteDefaultVoice
	}

	e := &RemoteEngine{
		model: cfg.RemoteModel,
		voice: voice,
		ready: cfg.RemoteBaseURL != "" && cfg.RemoteModel != "",
	}
	e.play = e.playFile

	if e.ready {
		opts := []option.RequestOption{option.WithBaseURL(cfg.RemoteBaseURL)}
		if cfg.RemoteAPIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.RemoteAPIKey))
		}
		e.client = openai.NewClient(opts...)
	}
	return e
}

// Ready implements Engine.
func (e *RemoteEngine) Ready() bool { return e.ready }

// Speak implements Engine: synthesize to a temp file, then hand it to the
// system player.
func (e *RemoteEngine) Speak(ctx context.Context, text string) error {
	if !e.ready {
		return fmt.Errorf("tts: remote endpoint not configured")
	}
	if text == "" {
		return nil
	}

	resp, err := e.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(e.model),
		Voice:          openai.AudioSpeechNewParamsVoice(e.voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return fmt.Errorf("tts: remote synthesis: %w", err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp("", "deskclaw-tts-*.wav")
	if err != nil {
		return fmt.Errorf("tts: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("tts: save synthesis: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tts: save synthesis: %w", err)
	}

	return e.play(ctx, tmp.Name())
}

func (e *RemoteEngine) playFile(ctx context.Context, path string) error {
	binary := findPlayer()
	if binary == "" {
		return fmt.Errorf("tts: no audio player found")
	}

	args := []string{path}
	switch binary {
	case "ffplay":
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet", path}
	case "mpv":
		args = []string{"--no-video", "--really-quiet", path}
	}

	cmd := exec.CommandContext(ctx, binary, args...)

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cmd = nil
		e.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tts: %s: %w", binary, err)
	}
	return nil
}

func findPlayer() string {
	for _, binary := range players {
		if _, err := exec.LookPath(binary); err == nil {
			return binary
		}
	}
	return ""
}

// Stop implements Engine by killing the player mid-utterance.
func (e *RemoteEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}
