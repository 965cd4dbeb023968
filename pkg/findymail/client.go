package findymail

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/resilience"
)

const defaultBaseURL = "https://api.findymail.com"

// Client discovers contact information from social handles.
type Client interface {
	FindFromHandle(ctx context.Context, handle, platform string) (*EmailResult, error)
}

// EmailResult is the outcome of an email discovery attempt. An empty Email
// with a nil error means the lookup ran but found nothing.
type EmailResult struct {
	Email      string   `json:"email"`
	Confidence int      `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
	Status     string   `json:"status,omitempty"`
}

type findRequest struct {
	InstagramHandle string `json:"instagram_handle,omitempty"`
	TwitterHandle   string `json:"twitter_handle,omitempty"`
	LinkedInURL     string `json:"linkedin_url,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
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
	http    *http.Client
}

// NewClient creates a Findymail API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
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

func (c *httpClient) FindFromHandle(ctx context.Context, handle, platform string) (*EmailResult, error) {
	var req findRequest
	switch strings.ToLower(platform) {
	case "instagram", "tiktok":
		req.InstagramHandle = handle
	case "twitter", "x":
		req.TwitterHandle = handle
	case "linkedin":
		req.LinkedInURL = "https://www.linkedin.com/in/" + handle
	default:
		// Lookup not supported for this platform; not an error.
		return &EmailResult{Status: "unsupported_platform"}, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "findymail: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/email-finder", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "findymail: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "findymail: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "findymail: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WrapHTTPStatus(
			eris.Errorf("findymail: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var result EmailResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "findymail: unmarshal response")
	}

	return &result, nil
}
