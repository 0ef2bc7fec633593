package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Content-recognition modes for the screen adapter.
const (
	ModeOCR = "ocr"
	ModeVLM = "vlm"
)

// Capture regions for screenshots.
const (
	RegionFullscreen   = "fullscreen"
	RegionActiveWindow = "active_window"
)

// Prefs is the user preference overlay written by the setup flow. It narrows
// what the daemon may observe; the explicit opt-ins here gate the paths that
// move data off-device.
type Prefs struct {
	Screen   ScreenPrefs `yaml:"screen"`
	Keyboard TogglePref  `yaml:"keyboard"`
	Voice    TogglePref  `yaml:"voice"`
}

// ScreenPrefs holds the screen adapter's privacy-sensitive switches.
type ScreenPrefs struct {
	Enabled                   *bool  `yaml:"enabled"`
	ContentRecognitionEnabled bool   `yaml:"content_recognition_enabled"`
	ContentRecognitionMode    string `yaml:"content_recognition_mode"` // ocr | vlm
	CaptureRegion             string `yaml:"capture_region"`           // fullscreen | active_window
}

// TogglePref is a bare enabled flag.
type TogglePref struct {
	Enabled *bool `yaml:"enabled"`
}

// LoadPrefs reads the preferences file. A missing file yields zero-value
// prefs (everything enabled, content recognition off).
func LoadPrefs(path string) (Prefs, error) {
	var prefs Prefs
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prefs, nil
		}
		return prefs, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		return prefs, fmt.Errorf("config: parse prefs %s: %w", path, err)
	}
	return prefs, nil
}

// normalize fills mode/region defaults.
func (p Prefs) normalize() Prefs {
	if p.Screen.ContentRecognitionMode == "" {
		p.Screen.ContentRecognitionMode = ModeOCR
	}
	if p.Screen.CaptureRegion == "" {
		p.Screen.CaptureRegion = RegionActiveWindow
	}
	return p
}

// ScreenEnabled resolves the screen adapter's enabled flag.
func (c *Config) ScreenEnabled(p Prefs) bool { return enabled(c.Screen.Enabled, p.Screen.Enabled) }

// KeyboardEnabled resolves the keyboard adapter's enabled flag.
func (c *Config) KeyboardEnabled(p Prefs) bool {
	return enabled(c.Keyboard.Enabled, p.Keyboard.Enabled)
}

// VoiceEnabled resolves the voice adapter's enabled flag.
func (c *Config) VoiceEnabled(p Prefs) bool { return enabled(c.ASR.Enabled, p.Voice.Enabled) }

// PrefsView is a concurrency-safe view of the current preferences. Adapters
// read it each cycle, so a reload takes effect on the next capture without
// restarting any loop.
type PrefsView struct {
	mu    sync.RWMutex
	prefs Prefs
}

// NewPrefsView creates a view holding the given preferences.
func NewPrefsView(p Prefs) *PrefsView {
	return &PrefsView{prefs: p.normalize()}
}

// Current returns the preferences as of now.
func (v *PrefsView) Current() Prefs {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.prefs
}

// Set replaces the preferences.
func (v *PrefsView) Set(p Prefs) {
	v.mu.Lock()
	v.prefs = p.normalize()
	v.mu.Unlock()
}
