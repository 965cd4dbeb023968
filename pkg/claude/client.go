// Package claude drafts personalized outreach messages via the Anthropic API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
)

// Client drafts outreach copy for a researched lead.
type Client interface {
	DraftOutreach(ctx context.Context, req DraftRequest) (*Draft, error)
}

// DraftRequest carries everything the model needs to personalize a message.
type DraftRequest struct {
	Handle   string
	Platform string
	Bio      string
	Research string
	Channel  string // "email" or "dm"
}

// Draft is a generated outreach message. Subject is empty for DM channels.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the default max output tokens.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) {
		c.maxTokens = n
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.requestOpts = append(c.requestOpts, option.WithBaseURL(url))
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	requestOpts []option.RequestOption
}

// NewClient creates an Anthropic-backed drafting client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	c.requestOpts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.requestOpts...)
	c.client = sdk.NewClient(c.requestOpts...)
	return c
}

const systemPrompt = `You write short, warm partnership outreach for a creator marketing team.
Keep it under 120 words, reference something specific from the research, and end with a
low-pressure call to action. Respond with only a JSON object: {"subject": "...", "body": "..."}.
For DM channels the subject must be an empty string.`

func (c *sdkClient) DraftOutreach(ctx context.Context, req DraftRequest) (*Draft, error) {
	prompt := fmt.Sprintf(
		"Draft a %s outreach message to @%s on %s.\n\nBio: %s\n\nResearch:\n%s",
		req.Channel, req.Handle, req.Platform, req.Bio, req.Research,
	)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "claude: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, eris.New("claude: empty response")
	}

	return parseDraft(text.String())
}

// parseDraft extracts the JSON draft, tolerating markdown code fences.
func parseDraft(text string) (*Draft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("claude: no JSON draft in response: %q", text)
	}

	var d Draft
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return nil, eris.Wrap(err, "claude: unmarshal draft")
	}
	if strings.TrimSpace(d.Body) == "" {
		return nil, eris.New("claude: draft has empty body")
	}
	return &d, nil
}
