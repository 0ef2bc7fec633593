package screen

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/deskclaw/deskclaw/adapter"
	"github.com/deskclaw/deskclaw/config"
)

const (
	// Name is the adapter identity and snapshot key.
	Name = "screen"

	windowPriority  = 5
	contentPriority = 7

	// maxLookupFailures is how many consecutive window lookups may fail
	// before the loop reports a runtime fault to the supervisor.
	maxLookupFailures = 5
)

// Adapter watches the active window and, when enabled, periodically
// recognizes screen content. Both loops share the "screen" identity; the
// content loop reads the preference view every cycle, so switching the
// recognition mode takes effect on the next capture without restarting the
// window watch.
type Adapter struct {
	interval        time.Duration
	contentInterval time.Duration
	prefs           *config.PrefsView
	recognizer      *Recognizer

	// lookup is swappable for tests.
	lookup func(ctx context.Context) (WindowInfo, error)

	mu          sync.Mutex
	lastWindow  *WindowInfo
	lastContent map[string]any
}

// New creates the screen adapter.
func New(cfg config.ScreenConfig, prefs *config.PrefsView) *Adapter {
	return &Adapter{
		interval:        cfg.Interval(),
		contentInterval: cfg.ContentInterval(),
		prefs:           prefs,
		recognizer:      NewRecognizer(cfg.ContentMaxRunes),
		lookup:          ActiveWindow,
	}
}

// Info implements adapter.Adapter.
func (a *Adapter) Info() adapter.Info {
	return adapter.Info{Name: Name, DefaultPriority: windowPriority}
}

// Available reports whether the platform has a window lookup.
func (a *Adapter) Available() bool { return Supported() }

// Init probes the window lookup once so a broken environment (e.g. missing
// accessibility permission) disables the adapter up front instead of faulting
// the loop later.
func (a *Adapter) Init(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := a.lookup(probeCtx); err != nil {
		return fmt.Errorf("screen: window lookup probe: %w", err)
	}

	prefs := a.prefs.Current().Screen
	if prefs.ContentRecognitionEnabled {
		if !captureSupported {
			log.Printf("[screen] screenshot capture unsupported here; content recognition will be skipped")
		}
		if prefs.ContentRecognitionMode == config.ModeOCR && !ocrAvailable() {
			log.Printf("[screen] tesseract not found; ocr captures will fail until it is installed")
		}
	}
	return nil
}

// Run executes the window-watch loop and, alongside it, the content loop.
func (a *Adapter) Run(ctx context.Context, sink adapter.Sink) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.contentLoop(ctx, sink)
	}()

	err := a.windowLoop(ctx, sink)
	wg.Wait()
	return err
}

func (a *Adapter) windowLoop(ctx context.Context, sink adapter.Sink) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		lookupCtx, cancel := context.WithTimeout(ctx, a.interval)
		info, err := a.lookup(lookupCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= maxLookupFailures {
				return fmt.Errorf("screen: window lookup failing repeatedly: %w", err)
			}
			log.Printf("[screen] window lookup failed: %v", err)
			continue
		}
		failures = 0

		a.mu.Lock()
		changed := a.lastWindow == nil || a.lastWindow.Title != info.Title || a.lastWindow.Process != info.Process
		a.lastWindow = &info
		payload := a.statePayloadLocked()
		a.mu.Unlock()

		if changed {
			sink.Emit(adapter.NewEvent(Name, "window_changed", payload, windowPriority))
		}
	}
}

func (a *Adapter) contentLoop(ctx context.Context, sink adapter.Sink) {
	ticker := time.NewTicker(a.contentInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		prefs := a.prefs.Current().Screen
		if !prefs.ContentRecognitionEnabled {
			continue
		}

		a.mu.Lock()
		var bounds *image.Rectangle
		if a.lastWindow != nil {
			bounds = a.lastWindow.Bounds
		}
		a.mu.Unlock()

		captureCtx, cancel := context.WithTimeout(ctx, a.contentInterval)
		content, err := a.recognizer.Analyze(captureCtx, prefs, bounds)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[screen] content recognition failed: %v", err)
			}
			continue
		}
		if content == nil {
			continue
		}

		a.mu.Lock()
		a.lastContent = content
		payload := a.statePayloadLocked()
		a.mu.Unlock()

		sink.Emit(adapter.NewEvent(Name, "screen_content", payload, contentPriority))
	}
}

// State implements adapter.Adapter from cached observations only.
func (a *Adapter) State(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statePayloadLocked(), nil
}

// statePayloadLocked builds the full screen payload. Every emitted event
// carries the combined state so the snapshot merge (which overwrites the
// whole entry) stays coherent across the two loops.
func (a *Adapter) statePayloadLocked() map[string]any {
	payload := map[string]any{}
	if a.lastWindow != nil {
		payload["active_window"] = a.lastWindow.Title
		payload["process"] = a.lastWindow.Process
		if category := categorize(a.lastWindow.Process); category != "" {
			payload["category"] = category
		}
	}
	if a.lastContent != nil {
		payload["content"] = a.lastContent
	}
	return payload
}

var categories = map[string]string{
	"code":      "editor",
	"goland":    "editor",
	"sublime":   "editor",
	"vim":       "editor",
	"safari":    "browser",
	"chrome":    "browser",
	"firefox":   "browser",
	"edge":      "browser",
	"terminal":  "terminal",
	"iterm":     "terminal",
	"alacritty": "terminal",
	"slack":     "chat",
	"discord":   "chat",
	"wechat":    "chat",
	"keynote":   "office",
	"powerpnt":  "office",
	"excel":     "office",
	"word":      "office",
}

func categorize(process string) string {
	p := strings.ToLower(process)
	for needle, category := range categories {
		if strings.Contains(p, needle) {
			return category
		}
	}
	return ""
}
