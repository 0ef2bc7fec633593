package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/deskclaw/deskclaw/adapter"
	"github.com/deskclaw/deskclaw/config"
)

const (
	// Name is the adapter identity and snapshot key.
	Name = "voice"

	// SpeechPriority puts recognized speech above the default interrupt
	// threshold: a new utterance preempts an in-flight decision call.
	SpeechPriority = 9

	defaultSampleRate = 16000
	frameDuration     = 30 * time.Millisecond

	// minSegmentFrames drops blips too short to be words.
	minSegmentFrames = 8

	// maxSegmentDuration bounds one utterance buffer.
	maxSegmentDuration = 30 * time.Second
)

// Adapter listens to the microphone, detects speech segments, and emits
// "speech" events with recognized text.
type Adapter struct {
	source     AudioSource
	recognizer Recognizer
	detector   *Detector
	sampleRate int

	mu         sync.Mutex
	lastSpeech time.Time
	lastText   string
}

// New creates the voice adapter.
func New(cfg config.ASRConfig, source AudioSource, recognizer Recognizer) *Adapter {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	return &Adapter{
		source:     source,
		recognizer: recognizer,
		detector:   NewDetector(cfg.VADThreshold, cfg.HangoverFrames),
		sampleRate: rate,
	}
}

// Info implements adapter.Adapter.
func (a *Adapter) Info() adapter.Info {
	return adapter.Info{Name: Name, DefaultPriority: SpeechPriority}
}

// Available implements adapter.Adapter.
func (a *Adapter) Available() bool { return a.source.Available() }

// Init implements adapter.Adapter. The recognizer and source are constructed
// up front; there is nothing left to acquire until Run opens the stream.
func (a *Adapter) Init(ctx context.Context) error {
	if a.recognizer == nil {
		return errors.New("voice: no recognizer configured")
	}
	return nil
}

// Run implements adapter.Adapter: read frames, gate them through the
// detector, and recognize each finished segment.
func (a *Adapter) Run(ctx context.Context, sink adapter.Sink) error {
	stream, err := a.source.Open(ctx, a.sampleRate)
	if err != nil {
		return fmt.Errorf("voice: open audio source: %w", err)
	}
	defer stream.Close()

	frameBytes := a.sampleRate * 2 * int(frameDuration) / int(time.Second)
	maxSegmentBytes := a.sampleRate * 2 * int(maxSegmentDuration/time.Second)
	frame := make([]byte, frameBytes)
	var segment []byte

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := io.ReadFull(stream, frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("voice: audio stream: %w", err)
		}

		speech, ended := a.detector.Feed(frame)
		if speech {
			if len(segment) < maxSegmentBytes {
				segment = append(segment, frame...)
			}
			continue
		}
		if !ended {
			continue
		}

		frames := len(segment) / frameBytes
		pcm := segment
		segment = nil
		if frames < minSegmentFrames {
			continue
		}

		a.recognizeSegment(ctx, sink, pcm)
	}
}

func (a *Adapter) recognizeSegment(ctx context.Context, sink adapter.Sink, pcm []byte) {
	text, err := a.recognizer.Transcribe(ctx, encodeWAV(pcm, a.sampleRate))
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[voice] recognition failed: %v", err)
		}
		return
	}
	if text == "" {
		return
	}

	a.mu.Lock()
	a.lastSpeech = time.Now()
	a.lastText = text
	a.mu.Unlock()

	sink.Emit(adapter.NewEvent(Name, adapter.KindSpeech, map[string]any{
		adapter.DataRecognizedText: text,
	}, SpeechPriority))
}

// State implements adapter.Adapter from cached observations only.
func (a *Adapter) State(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := map[string]any{}
	if !a.lastSpeech.IsZero() {
		state["last_speech_ago_seconds"] = int(time.Since(a.lastSpeech).Seconds())
		state[adapter.DataRecognizedText] = a.lastText
	}
	return state, nil
}
