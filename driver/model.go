package driver

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

// ModelInfo describes the avatar model the frontend should load, including
// its emotion-to-expression index map.
type ModelInfo struct {
	raw map[string]any
}

// LoadModelInfo reads a model_dict.json and keeps the first model entry. A
// missing or invalid file yields empty info; the bridge still runs and
// frontends fall back to their bundled model.
func LoadModelInfo(path string) ModelInfo {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[driver] model dict not loaded: %v", err)
		return ModelInfo{}
	}

	var models []map[string]any
	if err := json.Unmarshal(data, &models); err != nil {
		log.Printf("[driver] model dict invalid: %v", err)
		return ModelInfo{}
	}
	if len(models) == 0 {
		return ModelInfo{}
	}
	return ModelInfo{raw: models[0]}
}

// NewModelInfo wraps an already-decoded model entry.
func NewModelInfo(raw map[string]any) ModelInfo { return ModelInfo{raw: raw} }

// expressionAliases folds the looser emotion vocabulary some gateways emit
// onto the keys model emotion maps use.
var expressionAliases = map[string]string{
	"happy":     "joy",
	"sad":       "sadness",
	"surprised": "surprise",
	"angry":     "anger",
	"thinking":  "neutral",
}

// Expressions maps an emotion onto the model's expression indices, or nil
// when the model has no matching expression.
func (m ModelInfo) Expressions(emotion string) []int {
	if emotion == "" || m.raw == nil {
		return nil
	}

	key := strings.ToLower(emotion)
	if mapped, ok := expressionAliases[key]; ok {
		key = mapped
	}

	emoMap, _ := m.raw["emotionMap"].(map[string]any)
	index, ok := emoMap[key].(float64)
	if !ok {
		return nil
	}
	return []int{int(index)}
}

// serveModelInfo answers the frontend's model discovery request.
func (s *Server) serveModelInfo(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"type":  "live2d-models/info",
		"count": 0,
	}
	if s.modelInfo.raw != nil {
		payload["count"] = 1
		payload["characters"] = []map[string]any{s.modelInfo.raw}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_ = json.NewEncoder(w).Encode(payload)
}
