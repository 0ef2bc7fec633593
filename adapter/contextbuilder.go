package adapter

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildOptions controls context rendering.
type BuildOptions struct {
	// IncludeStale renders sections for stale snapshot entries. When false,
	// an adapter that stopped or went silent simply has no section.
	IncludeStale bool

	// Now overrides the clock for the trailing time section. Zero means
	// time.Now.
	Now time.Time
}

// sectionOrder fixes the rendering order for the first-party adapters; any
// other identity renders after them, sorted by name via the snapshot walk.
var sectionOrder = []string{"screen", "keyboard", "voice"}

// BuildContext turns a merged snapshot into the natural-language context text
// handed to the decision loop. It is a pure transform: one section per
// adapter identity present in the snapshot, then a trailing time-of-day
// section. Absent adapters produce no section.
func BuildContext(snap Snapshot, opts BuildOptions) string {
	var lines []string

	seen := make(map[string]bool, len(snap))
	for _, name := range sectionOrder {
		seen[name] = true
		entry, ok := snap[name]
		if !ok || (entry.Stale && !opts.IncludeStale) {
			continue
		}
		lines = append(lines, renderSection(name, entry)...)
	}
	for name, entry := range snap {
		if seen[name] || (entry.Stale && !opts.IncludeStale) {
			continue
		}
		lines = append(lines, renderGeneric(name, entry.Data)...)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	lines = append(lines, fmt.Sprintf("[time] %s %s", now.Format("2006-01-02 15:04"), now.Weekday()))

	return strings.Join(lines, "\n")
}

func renderSection(name string, entry Entry) []string {
	switch name {
	case "screen":
		return renderScreen(entry.Data)
	case "keyboard":
		return renderKeyboard(entry.Data)
	case "voice":
		return renderVoice(entry.Data)
	default:
		return renderGeneric(name, entry.Data)
	}
}

func renderScreen(data map[string]any) []string {
	var lines []string

	window, _ := data["active_window"].(string)
	process, _ := data["process"].(string)
	if window != "" || process != "" {
		desc := window
		if process != "" && window != "" {
			desc = process + " / " + window
		} else if process != "" {
			desc = process
		}
		if category, _ := data["category"].(string); category != "" {
			desc += " (" + category + ")"
		}
		lines = append(lines, "[desktop] user is working in "+desc)
	}

	if content, ok := data["content"].(map[string]any); ok {
		ctype, _ := content["type"].(string)
		payload, _ := content["content"].(string)
		switch {
		case ctype == "ocr" && payload != "":
			lines = append(lines, "[screen content] text on screen: "+payload)
		case ctype == "screenshot_b64" && payload != "":
			lines = append(lines, "[screen content] a screenshot of the desktop was captured")
		}
	}
	return lines
}

func renderKeyboard(data map[string]any) []string {
	rate, ok := asFloat(data["typing_rate"])
	if !ok {
		return nil
	}
	active, _ := data["active"].(bool)
	state := "idle"
	if active {
		state = "actively typing"
	}
	return []string{fmt.Sprintf("[typing] %.0f keys/min, %s", rate, state)}
}

func renderVoice(data map[string]any) []string {
	if ago, ok := asFloat(data["last_speech_ago_seconds"]); ok {
		return []string{fmt.Sprintf("[voice] last spoke %ds ago", int(ago))}
	}
	if text, _ := data[DataRecognizedText].(string); text != "" {
		return []string{"[voice] last heard: " + text}
	}
	return nil
}

// renderGeneric handles adapters the builder has no bespoke section for, e.g.
// hardware extensions; keys render as a flat listing.
func renderGeneric(name string, data map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	parts := make([]string, 0, len(data))
	for _, key := range sortedKeys(data) {
		parts = append(parts, fmt.Sprintf("%s=%v", key, data[key]))
	}
	return []string{fmt.Sprintf("[%s] %s", name, strings.Join(parts, " "))}
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
