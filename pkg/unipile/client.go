// Package unipile sends LinkedIn direct messages through the Unipile API.
package unipile

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/resilience"
)

// Client sends direct messages from a connected LinkedIn account.
type Client interface {
	SendDM(ctx context.Context, req DMRequest) (*DMResult, error)
}

// DMRequest addresses a message to a LinkedIn profile URL.
type DMRequest struct {
	ProfileURL string
	Text       string
}

// DMResult identifies the created chat.
type DMResult struct {
	ChatID string `json:"chat_id"`
}

type startChatRequest struct {
	AccountID    string   `json:"account_id"`
	AttendeesIDs []string `json:"attendees_ids"`
	Text         string   `json:"text"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey    string
	accountID string
	baseURL   string
	http      *http.Client
}

// NewClient creates a Unipile client. baseURL is the tenant DSN, e.g.
// "https://api1.unipile.com:13111".
func NewClient(apiKey, accountID, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		accountID: accountID,
		baseURL:   baseURL,
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

func (c *httpClient) SendDM(ctx context.Context, req DMRequest) (*DMResult, error) {
	body, err := json.Marshal(startChatRequest{
		AccountID:    c.accountID,
		AttendeesIDs: []string{req.ProfileURL},
		Text:         req.Text,
	})
	if err != nil {
		return nil, eris.Wrap(err, "unipile: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chats", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "unipile: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "unipile: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "unipile: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, resilience.WrapHTTPStatus(
			eris.Errorf("unipile: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var result DMResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "unipile: unmarshal response")
	}
	if result.ChatID == "" {
		return nil, eris.New("unipile: response missing chat id")
	}

	return &result, nil
}
