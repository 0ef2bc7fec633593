package screen

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os/exec"
	"strings"

	"golang.org/x/image/draw"

	"github.com/deskclaw/deskclaw/config"
)

const (
	// DefaultMaxRunes bounds extracted text before it enters an event
	// payload.
	DefaultMaxRunes = 500

	// vlmMaxWidth/Height bound the hand-off screenshot; larger captures are
	// downscaled before encoding.
	vlmMaxWidth  = 1280
	vlmMaxHeight = 720

	jpegQuality = 80
)

// Recognizer turns a screenshot into a content payload. Mode "ocr" extracts
// text locally; nothing leaves the device. Mode "vlm" produces a compressed
// base64 image for remote visual understanding and is only reachable when
// the preferences explicitly enable it.
type Recognizer struct {
	maxRunes int

	// capture and extractText are swappable for tests.
	capture     func(ctx context.Context, region *image.Rectangle) ([]byte, error)
	extractText func(ctx context.Context, pngData []byte) (string, error)
}

// NewRecognizer creates a recognizer with the given text bound (0 means
// DefaultMaxRunes).
func NewRecognizer(maxRunes int) *Recognizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Recognizer{
		maxRunes:    maxRunes,
		capture:     captureScreenshot,
		extractText: tesseract,
	}
}

// Analyze captures the configured region and produces the content payload for
// the current mode, or nil when content recognition is disabled.
func (r *Recognizer) Analyze(ctx context.Context, prefs config.ScreenPrefs, windowBounds *image.Rectangle) (map[string]any, error) {
	if !prefs.ContentRecognitionEnabled {
		return nil, nil
	}

	var region *image.Rectangle
	if prefs.CaptureRegion == config.RegionActiveWindow && windowBounds != nil {
		region = windowBounds
	}

	shot, err := r.capture(ctx, region)
	if err != nil {
		return nil, err
	}

	switch prefs.ContentRecognitionMode {
	case config.ModeOCR:
		text, err := r.extractText(ctx, shot)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "ocr", "content": truncateRunes(text, r.maxRunes)}, nil

	case config.ModeVLM:
		encoded, err := compressAndEncode(shot)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "screenshot_b64", "content": encoded}, nil

	default:
		return nil, fmt.Errorf("screen: unknown content recognition mode %q", prefs.ContentRecognitionMode)
	}
}

// tesseract runs local OCR over the screenshot via the tesseract binary.
func tesseract(ctx context.Context, pngData []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "tesseract", "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(pngData)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("screen: tesseract: %w", err)
	}
	return strings.Join(strings.Fields(string(out)), " "), nil
}

// ocrAvailable reports whether the local OCR tool is installed.
func ocrAvailable() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}

// compressAndEncode downscales the PNG capture to the hand-off bound and
// returns it as base64 JPEG.
func compressAndEncode(pngData []byte) (string, error) {
	img, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return "", fmt.Errorf("screen: decode capture: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	scale := 1.0
	if s := float64(vlmMaxWidth) / float64(width); s < scale {
		scale = s
	}
	if s := float64(vlmMaxHeight) / float64(height); s < scale {
		scale = s
	}
	if scale < 1.0 {
		scaled := image.NewRGBA(image.Rect(0, 0, int(float64(width)*scale), int(float64(height)*scale)))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)
		img = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("screen: encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
