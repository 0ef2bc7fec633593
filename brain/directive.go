package brain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Directive is one reasoning outcome: what the companion says, the expression
// it wears, and the motion it plays.
type Directive struct {
	Text    string `json:"text"`
	Emotion string `json:"emotion"`
	Motion  string `json:"motion"`
}

const (
	EmotionNeutral = "neutral"
	MotionIdle     = "idle"
)

// emotionAliases folds gateway vocabulary onto the canonical emotion set.
var emotionAliases = map[string]string{
	"neutral":   EmotionNeutral,
	"joy":       "joy",
	"happy":     "joy",
	"sadness":   "sadness",
	"sad":       "sadness",
	"anger":     "anger",
	"angry":     "anger",
	"fear":      "fear",
	"afraid":    "fear",
	"surprise":  "surprise",
	"surprised": "surprise",
	"disgust":   "disgust",
	"thinking":  EmotionNeutral,
}

// ParseDirective decodes a gateway JSON response into a Directive. It is
// deliberately forgiving: missing or mistyped fields fall back to defaults,
// unknown emotions collapse to neutral. Only unparseable JSON is an error,
// and even then the returned Directive is safe to render.
func ParseDirective(raw []byte) (Directive, error) {
	fallback := Directive{Emotion: EmotionNeutral, Motion: MotionIdle}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fallback, fmt.Errorf("brain: malformed directive: %w", err)
	}

	d := Directive{
		Text:    stringField(fields, "text"),
		Emotion: canonicalEmotion(stringField(fields, "emotion")),
		Motion:  strings.ToLower(strings.TrimSpace(stringField(fields, "motion"))),
	}
	if d.Motion == "" {
		d.Motion = MotionIdle
	}
	return d, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func canonicalEmotion(s string) string {
	if canonical, ok := emotionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return canonical
	}
	return EmotionNeutral
}
