package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deskclaw/deskclaw/config"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Directive
		wantErr bool
	}{
		{
			name: "complete",
			raw:  `{"text":"hi there","emotion":"joy","motion":"wave"}`,
			want: Directive{Text: "hi there", Emotion: "joy", Motion: "wave"},
		},
		{
			name: "missing fields default",
			raw:  `{"text":"just text"}`,
			want: Directive{Text: "just text", Emotion: "neutral", Motion: "idle"},
		},
		{
			name: "alias emotion folds",
			raw:  `{"text":"oh","emotion":"Surprised","motion":"JUMP"}`,
			want: Directive{Text: "oh", Emotion: "surprise", Motion: "jump"},
		},
		{
			name: "unknown emotion coerces to neutral",
			raw:  `{"text":"hm","emotion":"bewildered"}`,
			want: Directive{Text: "hm", Emotion: "neutral", Motion: "idle"},
		},
		{
			name: "mistyped fields tolerated",
			raw:  `{"text":42,"emotion":["joy"],"motion":null}`,
			want: Directive{Emotion: "neutral", Motion: "idle"},
		},
		{
			name:    "malformed json recoverable",
			raw:     `{"text": "unterminated`,
			want:    Directive{Emotion: "neutral", Motion: "idle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirective([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("directive = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(config.BrainConfig{Model: "m"}); err == nil {
		t.Error("missing base_url must fail")
	}
	if _, err := NewClient(config.BrainConfig{BaseURL: "http://localhost:9/v1"}); err == nil {
		t.Error("missing model must fail")
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	up, err := NewClient(config.BrainConfig{BaseURL: srv.URL + "/v1", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if err := up.Probe(context.Background()); err != nil {
		t.Errorf("reachable gateway probed as down: %v", err)
	}

	// Port 9 (discard) is closed on any sane test host.
	down, err := NewClient(config.BrainConfig{BaseURL: "http://127.0.0.1:9/v1", Model: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if err := down.Probe(context.Background()); err == nil {
		t.Error("unreachable gateway probed as up")
	}
}

func TestThinkParsesGatewayReply(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {
					"role": "assistant",
					"content": "{\"text\":\"back to work?\",\"emotion\":\"happy\",\"motion\":\"wave\"}"
				}
			}]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.BrainConfig{BaseURL: srv.URL, Model: "claw-1", APIKey: "test"})
	if err != nil {
		t.Fatal(err)
	}

	d, err := c.Think(context.Background(), "[desktop] user is working in vim", "hello")
	if err != nil {
		t.Fatalf("Think: %v", err)
	}
	if d.Text != "back to work?" || d.Emotion != "joy" || d.Motion != "wave" {
		t.Errorf("directive = %+v", d)
	}

	if gotBody["model"] != "claw-1" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if rf, _ := gotBody["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", gotBody["response_format"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
}
