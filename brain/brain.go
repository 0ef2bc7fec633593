// Package brain talks to the remote reasoning gateway: desktop context plus
// the user's words go in, a renderable directive comes out.
package brain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/deskclaw/deskclaw/config"
)

const probeTimeout = 2 * time.Second

// defaultSystemPrompt is used when the config carries none. The JSON contract
// here must stay in sync with ParseDirective.
const defaultSystemPrompt = `You are a desktop companion. Reply with a single JSON object: {"text": what you say, "emotion": one of neutral/joy/sadness/anger/fear/surprise/disgust, "motion": a short motion tag such as idle}.`

// Client calls an OpenAI-compatible chat gateway with a forced JSON response
// format.
type Client struct {
	client       openai.Client
	model        string
	systemPrompt string
	timeout      time.Duration
	baseURL      string
}

// NewClient builds the gateway client from the brain config section.
func NewClient(cfg config.BrainConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("brain: base_url not configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("brain: model not configured")
	}

	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	return &Client{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: prompt,
		timeout:      cfg.Timeout(),
		baseURL:      cfg.BaseURL,
	}, nil
}

// Probe checks that the gateway host answers a TCP dial. It runs once at
// startup so a dead gateway is reported before the first decision, not during
// it.
func (c *Client) Probe(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("brain: base_url: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	dialer := net.Dialer{Timeout: probeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("brain: gateway unreachable at %s: %w", host, err)
	}
	conn.Close()
	return nil
}

// Think sends the fused desktop context and the user's words to the gateway
// and parses the directive out of its JSON reply.
func (c *Client) Think(ctx context.Context, contextText, userText string) (Directive, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf("[desktop state]\n%s\n\n[user said]\n%s", contextText, userText)
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.systemPrompt),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Directive{}, fmt.Errorf("brain: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Directive{}, errors.New("brain: gateway returned no choices")
	}

	return ParseDirective([]byte(resp.Choices[0].Message.Content))
}
