package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/resilience"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// Client scores the visual brand fit of a creator profile.
type Client interface {
	VibeCheck(ctx context.Context, req VibeCheckRequest) (*VibeCheckResult, error)
}

// VibeCheckRequest carries the profile context to score.
type VibeCheckRequest struct {
	Handle   string
	Platform string
	Bio      string
	Research string
}

// VibeCheckResult is the structured verdict. Score is 0-100.
type VibeCheckResult struct {
	Score    int    `json:"score"`
	Analysis string `json:"analysis"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// NewClient creates a Gemini API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) VibeCheck(ctx context.Context, req VibeCheckRequest) (*VibeCheckResult, error) {
	prompt := fmt.Sprintf(
		`Score the brand fit of @%s on %s from 0 to 100 based on the profile below. Respond with only a JSON object {"score": <int>, "analysis": "<short text>"}.

Bio: %s
Research: %s`,
		req.Handle, req.Platform, req.Bio, req.Research,
	)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WrapHTTPStatus(
			eris.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "gemini: unmarshal response")
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, eris.New("gemini: empty response")
	}

	return parseVerdict(result.Candidates[0].Content.Parts[0].Text)
}

// parseVerdict extracts the JSON verdict, tolerating markdown code fences.
func parseVerdict(text string) (*VibeCheckResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("gemini: no JSON verdict in response: %q", text)
	}

	var v VibeCheckResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, eris.Wrap(err, "gemini: unmarshal verdict")
	}
	if v.Score < 0 || v.Score > 100 {
		return nil, eris.Errorf("gemini: score %d outside [0, 100]", v.Score)
	}
	return &v, nil
}
