// Package config loads the deskclaw configuration. Settings come from a yaml
// file with ${ENV} expansion, overlaid by the user preferences file under the
// deskclaw home directory. Nothing in here is global mutable state: callers
// load once at startup and thread the values through explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is where the daemon looks for its configuration.
	DefaultConfigPath = "conf.yaml"

	// HomeDirName is the per-user deskclaw directory under $HOME.
	HomeDirName = ".deskclaw"
)

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Brain    BrainConfig    `yaml:"brain"`
	TTS      TTSConfig      `yaml:"tts"`
	ASR      ASRConfig      `yaml:"asr"`
	Screen   ScreenConfig   `yaml:"screen_watcher"`
	Keyboard KeyboardConfig `yaml:"keyboard_watcher"`
	Manager  ManagerConfig  `yaml:"manager"`
	Nudge    NudgeConfig    `yaml:"nudge"`
	Verbose  bool           `yaml:"verbose"`
}

// ServerConfig configures the avatar driver WebSocket bridge.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BrainConfig configures the reasoning gateway client.
type BrainConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	SystemPrompt   string `yaml:"system_prompt"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (b BrainConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// TTSConfig configures speech synthesis providers.
type TTSConfig struct {
	Voice         string `yaml:"voice"`
	LocalCommand  string `yaml:"local_command"` // synthesizer binary, autodetected when empty
	RemoteBaseURL string `yaml:"remote_base_url"`
	RemoteAPIKey  string `yaml:"remote_api_key"`
	RemoteModel   string `yaml:"remote_model"`
}

// ASRConfig configures voice activity detection and speech recognition.
type ASRConfig struct {
	Enabled        *bool   `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	SampleRate     int     `yaml:"sample_rate"`
	VADThreshold   float64 `yaml:"vad_threshold"`
	HangoverFrames int     `yaml:"vad_hangover_frames"`
}

// ScreenConfig configures the screen adapter's polling cadence.
type ScreenConfig struct {
	Enabled                *bool `yaml:"enabled"`
	IntervalSeconds        int   `yaml:"interval_seconds"`
	ContentIntervalSeconds int   `yaml:"content_recognition_interval"`
	ContentMaxRunes        int   `yaml:"content_max_runes"`
}

// Interval returns the window-watch poll interval.
func (s ScreenConfig) Interval() time.Duration {
	if s.IntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ContentInterval returns the content-recognition poll interval.
func (s ScreenConfig) ContentInterval() time.Duration {
	if s.ContentIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.ContentIntervalSeconds) * time.Second
}

// KeyboardConfig configures the typing-rate monitor.
type KeyboardConfig struct {
	Enabled         *bool `yaml:"enabled"`
	IntervalSeconds int   `yaml:"interval_seconds"`
}

// Interval returns the typing-burst report interval.
func (k KeyboardConfig) Interval() time.Duration {
	if k.IntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(k.IntervalSeconds) * time.Second
}

// ManagerConfig tunes the adapter manager.
type ManagerConfig struct {
	InterruptThreshold     int `yaml:"interrupt_threshold"`
	DecisionTimeoutSeconds int `yaml:"decision_timeout_seconds"`
	StaleAfterSeconds      int `yaml:"stale_after_seconds"`
	StopGraceSeconds       int `yaml:"stop_grace_seconds"`
	MaxRestarts            int `yaml:"max_restarts"`
}

// DecisionTimeout returns the per-decision bound, or zero when unset so the
// manager applies its default.
func (m ManagerConfig) DecisionTimeout() time.Duration {
	return time.Duration(m.DecisionTimeoutSeconds) * time.Second
}

// StaleAfter returns the snapshot staleness horizon, or zero when unset.
func (m ManagerConfig) StaleAfter() time.Duration {
	return time.Duration(m.StaleAfterSeconds) * time.Second
}

// StopGrace returns the per-adapter shutdown grace, or zero when unset.
func (m ManagerConfig) StopGrace() time.Duration {
	return time.Duration(m.StopGraceSeconds) * time.Second
}

// NudgeConfig configures the periodic low-priority decision nudge.
type NudgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron expression, e.g. "*/30 * * * *"
}

// Load reads the configuration file at path, expanding ${VAR} references from
// the environment. A missing file is an error; malformed yaml is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	expanded := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// HomeDir returns the per-user deskclaw directory (~/.deskclaw).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return HomeDirName
	}
	return filepath.Join(home, HomeDirName)
}

// PrefsPath returns the user preferences file location.
func PrefsPath() string {
	return filepath.Join(HomeDir(), "user_prefs.yaml")
}

// ModelsDir returns where downloaded model weights live.
func ModelsDir() string {
	return filepath.Join(HomeDir(), "models")
}

// PIDPath returns the daemon PID file location.
func PIDPath() string {
	return filepath.Join(HomeDir(), "deskclaw.pid")
}

// LogPath returns the daemon log file location.
func LogPath() string {
	return filepath.Join(HomeDir(), "deskclaw.log")
}

// enabled resolves a section flag overlaid by a prefs flag; both default on.
func enabled(section, prefs *bool) bool {
	if section != nil && !*section {
		return false
	}
	if prefs != nil {
		return *prefs
	}
	return true
}
