package tts

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/deskclaw/deskclaw/config"
)

// synthesizers are probed in order; the first installed binary wins.
var synthesizers = []struct {
	binary string
	args   func(voice, text string) []string
}{
	{
		binary: "say",
		args: func(voice, text string) []string {
			if voice != "" {
				return []string{"-v", voice, text}
			}
			return []string{text}
		},
	},
	{
		binary: "espeak-ng",
		args: func(voice, text string) []string {
			if voice != "" {
				return []string{"-v", voice, text}
			}
			return []string{text}
		},
	},
	{
		binary: "espeak",
		args: func(voice, text string) []string {
			return []string{text}
		},
	},
}

// LocalEngine speaks through the system synthesizer binary.
type LocalEngine struct {
	binary string
	voice  string
	argsFn func(voice, text string) []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewLocalEngine resolves the synthesizer binary. An explicit local_command
// in the config wins over autodetection.
func NewLocalEngine(cfg config.TTSConfig) *LocalEngine {
	e := &LocalEngine{voice: cfg.Voice}

	if cfg.LocalCommand != "" {
		if _, err := exec.LookPath(cfg.LocalCommand); err == nil {
			e.binary = cfg.LocalCommand
			e.argsFn = func(voice, text string) []string { return []string{text} }
		}
		return e
	}

	for _, s := range synthesizers {
		if _, err := exec.LookPath(s.binary); err == nil {
			e.binary = s.binary
			e.argsFn = s.args
			break
		}
	}
	return e
}

// Ready implements Engine.
func (e *LocalEngine) Ready() bool { return e.binary != "" }

// Speak implements Engine.
func (e *LocalEngine) Speak(ctx context.Context, text string) error {
	if !e.Ready() {
		return fmt.Errorf("tts: no local synthesizer")
	}
	if text == "" {
		return nil
	}

	cmd := exec.CommandContext(ctx, e.binary, e.argsFn(e.voice, text)...)

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cmd = nil
		e.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tts: %s: %w", e.binary, err)
	}
	return nil
}

// Stop implements Engine by killing the synthesizer mid-utterance.
func (e *LocalEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
}
