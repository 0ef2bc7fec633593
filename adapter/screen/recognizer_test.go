package screen

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/deskclaw/deskclaw/config"
)

// tinyPNG returns an encoded 2000x1200 image, larger than the vlm hand-off
// bound so the downscale path runs.
func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2000, 1200))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func ocrPrefs(mode string) config.ScreenPrefs {
	return config.ScreenPrefs{
		ContentRecognitionEnabled: true,
		ContentRecognitionMode:    mode,
		CaptureRegion:             config.RegionFullscreen,
	}
}

func TestAnalyzeDisabledReturnsNil(t *testing.T) {
	r := NewRecognizer(0)
	r.capture = func(ctx context.Context, region *image.Rectangle) ([]byte, error) {
		t.Error("capture must not run when disabled")
		return nil, nil
	}

	content, err := r.Analyze(context.Background(), config.ScreenPrefs{}, nil)
	if err != nil || content != nil {
		t.Errorf("disabled analyze = (%v, %v), want (nil, nil)", content, err)
	}
}

func TestAnalyzeOCRTruncates(t *testing.T) {
	r := NewRecognizer(10)
	r.capture = func(ctx context.Context, region *image.Rectangle) ([]byte, error) {
		return tinyPNG(t), nil
	}
	r.extractText = func(ctx context.Context, pngData []byte) (string, error) {
		return strings.Repeat("a", 100), nil
	}

	content, err := r.Analyze(context.Background(), ocrPrefs(config.ModeOCR), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if content["type"] != "ocr" {
		t.Errorf("type = %v", content["type"])
	}
	if text := content["content"].(string); len([]rune(text)) != 10 {
		t.Errorf("text not truncated: %d runes", len([]rune(text)))
	}
}

func TestAnalyzeVLMDownscales(t *testing.T) {
	r := NewRecognizer(0)
	r.capture = func(ctx context.Context, region *image.Rectangle) ([]byte, error) {
		return tinyPNG(t), nil
	}

	content, err := r.Analyze(context.Background(), ocrPrefs(config.ModeVLM), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if content["type"] != "screenshot_b64" {
		t.Fatalf("type = %v", content["type"])
	}

	raw, err := base64.StdEncoding.DecodeString(content["content"].(string))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not jpeg: %v", err)
	}
	if w := img.Bounds().Dx(); w > vlmMaxWidth {
		t.Errorf("width %d exceeds hand-off bound", w)
	}
	if h := img.Bounds().Dy(); h > vlmMaxHeight {
		t.Errorf("height %d exceeds hand-off bound", h)
	}
}

func TestAnalyzeActiveWindowRegion(t *testing.T) {
	bounds := image.Rect(10, 20, 410, 320)
	var gotRegion *image.Rectangle

	r := NewRecognizer(0)
	r.capture = func(ctx context.Context, region *image.Rectangle) ([]byte, error) {
		gotRegion = region
		return tinyPNG(t), nil
	}
	r.extractText = func(ctx context.Context, pngData []byte) (string, error) { return "x", nil }

	prefs := ocrPrefs(config.ModeOCR)
	prefs.CaptureRegion = config.RegionActiveWindow
	if _, err := r.Analyze(context.Background(), prefs, &bounds); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if gotRegion == nil || *gotRegion != bounds {
		t.Errorf("capture region = %v, want %v", gotRegion, bounds)
	}
}

func TestAnalyzeUnknownModeFails(t *testing.T) {
	r := NewRecognizer(0)
	r.capture = func(ctx context.Context, region *image.Rectangle) ([]byte, error) {
		return tinyPNG(t), nil
	}
	if _, err := r.Analyze(context.Background(), ocrPrefs("hologram"), nil); err == nil {
		t.Error("unknown mode must fail")
	}
}
