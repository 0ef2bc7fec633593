// Package mood tracks a per-character emotional state learned from
// conversation. Directive and user text are scored against keyword tables,
// counters decay exponentially so old moods fade, and the state persists as
// one JSON document per character.
package mood

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Labels is the canonical emotion set, in scoring order.
var Labels = []string{"joy", "sadness", "anger", "fear", "surprise", "disgust"}

var keywords = map[string][]string{
	"joy":      {"happy", "glad", "great", "awesome", "yay", ":)", ":d", "love"},
	"sadness":  {"sad", "sorry", "unhappy", "miss", ":(", ":'("},
	"anger":    {"angry", "mad", "furious", "hate", "annoyed", "wtf"},
	"fear":     {"afraid", "scared", "fear", "worried", "nervous", "anxious"},
	"surprise": {"wow", "surprised", "omg", "unexpected"},
	"disgust":  {"disgust", "gross", "nasty", "ew"},
}

var safeComponent = regexp.MustCompile(`^[\w\-]+$`)

const (
	defaultDecay         = 0.9
	defaultMinConfidence = 0.2
	defaultMaxRecent     = 10
	defaultPromptItems   = 3

	snippetLimit = 160
)

// State is the current mood summary.
type State struct {
	Label       string  `json:"label"`
	Valence     float64 `json:"valence"`
	Arousal     float64 `json:"arousal"`
	Intensity   float64 `json:"intensity"`
	Source      string  `json:"source"`
	LastUpdated string  `json:"last_updated"`
}

// RecentEvent is one remembered emotional cue.
type RecentEvent struct {
	TS       string   `json:"ts"`
	Source   string   `json:"source"`
	Emotions []string `json:"emotions"`
	Text     string   `json:"text"`
}

// Memory is the persisted per-character document.
type Memory struct {
	Version       int                `json:"version"`
	UpdatedAt     string             `json:"updated_at"`
	State         State              `json:"state"`
	EmotionCounts map[string]float64 `json:"emotion_counts"`
	RecentEvents  []RecentEvent      `json:"recent_events"`
}

// Options tune learning. Zero values select defaults.
type Options struct {
	Decay           float64 // per-exchange counter decay, 0 < d < 1
	MinConfidence   float64 // intensity floor before the label resets
	MaxRecentEvents int
	PromptMaxItems  int
}

func (o Options) withDefaults() Options {
	if o.Decay <= 0 || o.Decay >= 1 {
		o.Decay = defaultDecay
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = defaultMinConfidence
	}
	if o.MaxRecentEvents <= 0 {
		o.MaxRecentEvents = defaultMaxRecent
	}
	if o.PromptMaxItems <= 0 {
		o.PromptMaxItems = defaultPromptItems
	}
	return o
}

// Store reads and writes mood memories under one directory.
type Store struct {
	dir  string
	opts Options
	now  func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts Options) *Store {
	return &Store{dir: dir, opts: opts.withDefaults(), now: time.Now}
}

// sanitizeComponent rejects path components that could escape the store
// directory or overflow the filesystem. Separators are rejected outright
// rather than stripped.
func sanitizeComponent(component string) (string, error) {
	cleaned := strings.TrimSpace(component)
	if cleaned == "" || len(cleaned) > 255 || !safeComponent.MatchString(cleaned) {
		return "", fmt.Errorf("mood: invalid character id %q", component)
	}
	return cleaned, nil
}

func (s *Store) path(character string) (string, error) {
	safe, err := sanitizeComponent(character)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, safe+".json"), nil
}

func (s *Store) defaultMemory(now string) *Memory {
	counts := map[string]float64{}
	for _, label := range Labels {
		counts[label] = 0
	}
	return &Memory{
		Version:       1,
		UpdatedAt:     now,
		State:         State{Label: "neutral", Source: "init", LastUpdated: now},
		EmotionCounts: counts,
		RecentEvents:  []RecentEvent{},
	}
}

// Load reads the memory for a character; a missing or corrupt file yields a
// fresh default.
func (s *Store) Load(character string) (*Memory, error) {
	path, err := s.path(character)
	if err != nil {
		return nil, err
	}

	now := s.now().Format(time.RFC3339)
	data, err := os.ReadFile(path)
	if err != nil {
		return s.defaultMemory(now), nil
	}

	mem := s.defaultMemory(now)
	if err := json.Unmarshal(data, mem); err != nil {
		return s.defaultMemory(now), nil
	}
	if mem.EmotionCounts == nil {
		mem.EmotionCounts = s.defaultMemory(now).EmotionCounts
	}
	return mem, nil
}

func (s *Store) save(character string, mem *Memory) error {
	path, err := s.path(character)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("mood: %w", err)
	}

	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("mood: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("mood: %w", err)
	}
	return nil
}

// detect counts keyword hits per label in text.
func detect(text string) map[string]float64 {
	if text == "" {
		return nil
	}
	normalized := strings.ToLower(text)
	scores := map[string]float64{}
	for label, words := range keywords {
		var count int
		for _, w := range words {
			count += strings.Count(normalized, w)
		}
		if count > 0 {
			scores[label] = float64(count)
		}
	}
	return scores
}

// Update folds one exchange into the character's memory and persists it.
func (s *Store) Update(character, userText, assistantText string) (*Memory, error) {
	mem, err := s.Load(character)
	if err != nil {
		return nil, err
	}

	now := s.now().Format(time.RFC3339)
	mem.UpdatedAt = now

	for _, label := range Labels {
		mem.EmotionCounts[label] *= s.opts.Decay
	}

	userScores := detect(userText)
	assistantScores := detect(assistantText)

	combined := map[string]float64{}
	for label, score := range userScores {
		mem.EmotionCounts[label] += score
		combined[label] += score
	}
	for label, score := range assistantScores {
		mem.EmotionCounts[label] += score
		combined[label] += score
	}

	var total float64
	for _, score := range combined {
		total += score
	}

	if total > 0 {
		mem.State = State{
			Label:       dominant(combined),
			Valence:     round3((combined["joy"] + 0.3*combined["surprise"] - combined["sadness"] - combined["anger"] - combined["fear"] - combined["disgust"]) / total),
			Arousal:     round3((combined["anger"] + combined["fear"] + combined["surprise"]) / total),
			Intensity:   round3(math.Min(1, total/4)),
			Source:      "conversation",
			LastUpdated: now,
		}
	} else {
		mem.State.Valence = round3(mem.State.Valence * s.opts.Decay)
		mem.State.Arousal = round3(mem.State.Arousal * s.opts.Decay)
		mem.State.Intensity = round3(mem.State.Intensity * s.opts.Decay)
		if mem.State.Intensity < s.opts.MinConfidence {
			mem.State.Label = "neutral"
			mem.State.Source = "decay"
			mem.State.LastUpdated = now
		}
	}

	mem.appendEvent(now, "user", userText, userScores)
	mem.appendEvent(now, "assistant", assistantText, assistantScores)
	if len(mem.RecentEvents) > s.opts.MaxRecentEvents {
		mem.RecentEvents = mem.RecentEvents[len(mem.RecentEvents)-s.opts.MaxRecentEvents:]
	}

	if err := s.save(character, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func (m *Memory) appendEvent(now, source, text string, scores map[string]float64) {
	if len(scores) == 0 {
		return
	}

	snippet := strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if len(snippet) > snippetLimit {
		snippet = snippet[:snippetLimit-3] + "..."
	}

	emotions := make([]string, 0, len(scores))
	for label := range scores {
		emotions = append(emotions, label)
	}
	sort.Strings(emotions)

	m.RecentEvents = append(m.RecentEvents, RecentEvent{
		TS:       now,
		Source:   source,
		Emotions: emotions,
		Text:     snippet,
	})
}

// PromptLine renders the flavor snippet appended to the system prompt, or ""
// when there is nothing worth saying.
func (s *Store) PromptLine(mem *Memory) string {
	if mem == nil {
		return ""
	}

	var lines []string
	lines = append(lines, fmt.Sprintf(
		"Current mood: %s (valence %.2f, arousal %.2f, intensity %.2f).",
		mem.State.Label, mem.State.Valence, mem.State.Arousal, mem.State.Intensity))

	if len(mem.RecentEvents) > 0 {
		n := len(mem.RecentEvents)
		if n > s.opts.PromptMaxItems {
			n = s.opts.PromptMaxItems
		}
		var cues []string
		for _, ev := range mem.RecentEvents[len(mem.RecentEvents)-n:] {
			if len(ev.Emotions) > 0 {
				cues = append(cues, ev.Source+"="+strings.Join(ev.Emotions, ","))
			}
		}
		if len(cues) > 0 {
			lines = append(lines, "Recent cues: "+strings.Join(cues, "; ")+".")
		}
	}

	return strings.Join(lines, " ")
}

func dominant(scores map[string]float64) string {
	best, bestScore := "neutral", 0.0
	// Labels order breaks ties deterministically.
	for _, label := range Labels {
		if scores[label] > bestScore {
			best, bestScore = label, scores[label]
		}
	}
	return best
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
