package adapter

import (
	"strings"
	"testing"
	"time"
)

func TestBuildContextMentionsPresentAdapters(t *testing.T) {
	snap := Snapshot{
		"screen": {
			Data:       map[string]any{"active_window": "VS Code", "process": "code"},
			ObservedAt: time.Now(),
		},
		"keyboard": {
			Data:       map[string]any{"typing_rate": 45, "active": true},
			ObservedAt: time.Now(),
		},
	}

	text := BuildContext(snap, BuildOptions{})
	if text == "" {
		t.Fatal("context must not be empty")
	}
	if !strings.Contains(text, "VS Code") {
		t.Errorf("missing window mention:\n%s", text)
	}
	if !strings.Contains(text, "45 keys/min") || !strings.Contains(text, "actively typing") {
		t.Errorf("missing typing state:\n%s", text)
	}
	if strings.Contains(text, "[voice]") {
		t.Errorf("absent voice adapter must produce no section:\n%s", text)
	}
}

func TestBuildContextEmptySnapshotStillHasTime(t *testing.T) {
	now := time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)
	text := BuildContext(Snapshot{}, BuildOptions{Now: now})
	if !strings.Contains(text, "[time] 2026-03-04 14:30 Wednesday") {
		t.Errorf("time section wrong:\n%s", text)
	}
	if strings.Count(text, "\n") != 0 {
		t.Errorf("empty snapshot should render only the time section:\n%s", text)
	}
}

func TestBuildContextStalePolicies(t *testing.T) {
	snap := Snapshot{
		"screen": {
			Data:       map[string]any{"active_window": "Mail"},
			ObservedAt: time.Now().Add(-time.Hour),
			Stale:      true,
		},
	}

	withStale := BuildContext(snap, BuildOptions{IncludeStale: true})
	if !strings.Contains(withStale, "Mail") {
		t.Errorf("IncludeStale must render stale entries:\n%s", withStale)
	}

	withoutStale := BuildContext(snap, BuildOptions{})
	if strings.Contains(withoutStale, "Mail") {
		t.Errorf("stale entries must be omitted by default:\n%s", withoutStale)
	}
}

func TestBuildContextScreenContent(t *testing.T) {
	snap := Snapshot{
		"screen": {
			Data: map[string]any{
				"active_window": "Browser",
				"content":       map[string]any{"type": "ocr", "content": "quarterly report"},
			},
			ObservedAt: time.Now(),
		},
	}
	text := BuildContext(snap, BuildOptions{})
	if !strings.Contains(text, "quarterly report") {
		t.Errorf("ocr content missing:\n%s", text)
	}

	snap["screen"].Data["content"] = map[string]any{"type": "screenshot_b64", "content": "aGVsbG8="}
	text = BuildContext(snap, BuildOptions{})
	if strings.Contains(text, "aGVsbG8=") {
		t.Errorf("raw screenshot bytes must not leak into context:\n%s", text)
	}
	if !strings.Contains(text, "screenshot") {
		t.Errorf("screenshot capture should be mentioned:\n%s", text)
	}
}

func TestBuildContextVoiceAndGenericSections(t *testing.T) {
	snap := Snapshot{
		"voice": {
			Data:       map[string]any{"last_speech_ago_seconds": 12},
			ObservedAt: time.Now(),
		},
		"heartband": {
			Data:       map[string]any{"bpm": 72, "worn": true},
			ObservedAt: time.Now(),
		},
	}
	text := BuildContext(snap, BuildOptions{})
	if !strings.Contains(text, "[voice] last spoke 12s ago") {
		t.Errorf("voice section wrong:\n%s", text)
	}
	if !strings.Contains(text, "[heartband]") || !strings.Contains(text, "bpm=72") {
		t.Errorf("unknown adapters should render generically:\n%s", text)
	}
}
