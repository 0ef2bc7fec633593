// Package voice implements the voice adapter: continuous voice-activity
// detection over the microphone stream, segment recognition, and "speech"
// events at elevated priority — voice input is the system's primary interrupt
// trigger.
package voice

import (
	"encoding/binary"
	"math"
)

// Detector is a frame-level energy gate. A frame whose RMS amplitude exceeds
// the threshold counts as speech; hangover frames keep a segment open across
// short pauses so one utterance is not split mid-word.
type Detector struct {
	threshold float64 // normalized RMS, 0..1
	hangover  int     // frames of silence tolerated inside a segment

	silentRun int
	inSegment bool
}

const (
	// DefaultThreshold suits a typical desk microphone at 16 kHz.
	DefaultThreshold = 0.015

	// DefaultHangover is ~450 ms of silence at 30 ms frames.
	DefaultHangover = 15
)

// NewDetector creates a detector; zero arguments select defaults.
func NewDetector(threshold float64, hangover int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if hangover <= 0 {
		hangover = DefaultHangover
	}
	return &Detector{threshold: threshold, hangover: hangover}
}

// Feed consumes one PCM frame (16-bit little-endian mono) and reports whether
// the frame belongs to a speech segment and whether a segment just ended.
func (d *Detector) Feed(frame []byte) (speech, segmentEnded bool) {
	loud := rms(frame) >= d.threshold

	switch {
	case loud:
		d.silentRun = 0
		d.inSegment = true
		return true, false
	case d.inSegment:
		d.silentRun++
		if d.silentRun > d.hangover {
			d.inSegment = false
			d.silentRun = 0
			return false, true
		}
		return true, false
	default:
		return false, false
	}
}

// Reset clears segment state, e.g. after an emitted segment.
func (d *Detector) Reset() {
	d.silentRun = 0
	d.inSegment = false
}

// rms computes the normalized root-mean-square amplitude of a 16-bit frame.
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
