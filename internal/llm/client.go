// Package llm wraps the chat-completions API used to write meal plans.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Prompt is one system + user exchange.
type Prompt struct {
	System    string
	User      string
	MaxTokens int64
}

// Client issues chat completions. Upstream failures are returned as-is; there
// is no local retry.
type Client struct {
	api   openai.Client
	model string
}

// New builds a Client.
func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &Client{api: openai.NewClient(opts...), model: model}
}

func (c *Client) params(p Prompt) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
	}
	if p.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.MaxTokens)
	}
	return params
}

// Complete returns the full completion text.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, c.params(p))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream calls onDelta for every content fragment as it arrives and returns
// the accumulated text once the stream ends. An error from onDelta stops the
// stream and is returned unchanged.
func (c *Client) Stream(ctx context.Context, p Prompt, onDelta func(string) error) (string, error) {
	stream := c.api.Chat.Completions.NewStreaming(ctx, c.params(p))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			sb.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return "", err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
