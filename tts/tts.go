// Package tts synthesizes directive text into audible speech. A local system
// synthesizer is preferred; an OpenAI-compatible speech endpoint covers
// machines without one. When neither works the daemon keeps running text-only.
package tts

import (
	"context"
	"errors"
	"log"

	"github.com/deskclaw/deskclaw/config"
)

// Engine speaks text aloud.
type Engine interface {
	// Speak synthesizes and plays text, blocking until playback finishes,
	// Stop is called, or ctx is canceled.
	Speak(ctx context.Context, text string) error

	// Stop cuts the current utterance short. Safe to call when idle.
	Stop()

	// Ready reports whether the engine can synthesize on this machine.
	Ready() bool
}

// NewWithFallback picks the speech engine for this run: the local synthesizer
// when one is installed, otherwise the remote endpoint. The choice is made
// once at startup; a local engine that later misbehaves fails per-utterance,
// it does not re-trigger fallback.
func NewWithFallback(cfg config.TTSConfig) (Engine, error) {
	local := NewLocalEngine(cfg)
	if local.Ready() {
		return local, nil
	}
	log.Printf("[tts] no local synthesizer found, trying remote endpoint")

	remote := NewRemoteEngine(cfg)
	if remote.Ready() {
		return remote, nil
	}

	return nil, errors.New("tts: no local synthesizer and no remote endpoint configured")
}
