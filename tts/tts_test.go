package tts

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/deskclaw/deskclaw/config"
)

func TestLocalEngineExplicitCommand(t *testing.T) {
	e := NewLocalEngine(config.TTSConfig{LocalCommand: "true"})
	if !e.Ready() {
		t.Fatal("engine with an installed local_command must be ready")
	}
	if err := e.Speak(context.Background(), "hello"); err != nil {
		t.Errorf("Speak: %v", err)
	}

	missing := NewLocalEngine(config.TTSConfig{LocalCommand: "no-such-synthesizer"})
	if missing.Ready() {
		t.Error("missing local_command must leave the engine not ready")
	}
	if err := missing.Speak(context.Background(), "hello"); err == nil {
		t.Error("Speak without a synthesizer must fail")
	}
}

func TestLocalEngineEmptyTextIsNoop(t *testing.T) {
	e := NewLocalEngine(config.TTSConfig{LocalCommand: "no-such-synthesizer"})
	if err := e.Speak(context.Background(), ""); err != nil {
		t.Errorf("empty text must not touch the synthesizer: %v", err)
	}
}

func TestLocalEngineStopCutsUtteranceShort(t *testing.T) {
	// "sleep 5" stands in for a long utterance.
	e := NewLocalEngine(config.TTSConfig{LocalCommand: "sleep"})
	if !e.Ready() {
		t.Skip("sleep not installed")
	}

	done := make(chan error, 1)
	go func() { done <- e.Speak(context.Background(), "5") }()

	time.Sleep(100 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		if err == nil {
			t.Error("killed utterance should surface an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cut the utterance short")
	}
}

func TestRemoteEngineSpeaksThroughEndpoint(t *testing.T) {
	audio := []byte("RIFF-not-really-audio")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	e := NewRemoteEngine(config.TTSConfig{
		RemoteBaseURL: srv.URL,
		RemoteModel:   "qwen3-tts",
		RemoteAPIKey:  "test",
	})
	if !e.Ready() {
		t.Fatal("configured remote engine must be ready")
	}

	played := make(chan []byte, 1)
	e.play = func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		played <- data
		return nil
	}

	if err := e.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	select {
	case got := <-played:
		if !bytes.Equal(got, audio) {
			t.Errorf("played %q, want %q", got, audio)
		}
	default:
		t.Fatal("nothing was handed to the player")
	}
}

func TestRemoteEngineUnconfigured(t *testing.T) {
	e := NewRemoteEngine(config.TTSConfig{})
	if e.Ready() {
		t.Error("unconfigured remote engine must not be ready")
	}
	if err := e.Speak(context.Background(), "hello"); err == nil {
		t.Error("Speak on an unconfigured engine must fail")
	}
}

func TestNewWithFallback(t *testing.T) {
	eng, err := NewWithFallback(config.TTSConfig{LocalCommand: "true"})
	if err != nil {
		t.Fatalf("local fallback: %v", err)
	}
	if _, ok := eng.(*LocalEngine); !ok {
		t.Errorf("engine = %T, want *LocalEngine", eng)
	}

	eng, err = NewWithFallback(config.TTSConfig{
		LocalCommand:  "no-such-synthesizer",
		RemoteBaseURL: "http://127.0.0.1:9/v1",
		RemoteModel:   "qwen3-tts",
	})
	if err != nil {
		t.Fatalf("remote fallback: %v", err)
	}
	if _, ok := eng.(*RemoteEngine); !ok {
		t.Errorf("engine = %T, want *RemoteEngine", eng)
	}

	if _, err := NewWithFallback(config.TTSConfig{LocalCommand: "no-such-synthesizer"}); err == nil {
		t.Error("no engine at all must be an error")
	}
}
