// Package smartlead dispatches email outreach through the Smartlead API.
package smartlead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/resilience"
)

const defaultBaseURL = "https://server.smartlead.ai"

// Client adds leads to a Smartlead campaign for email delivery.
type Client interface {
	SendEmail(ctx context.Context, req SendRequest) (*SendResult, error)
}

// SendRequest carries a single recipient and their personalized copy.
type SendRequest struct {
	Email     string
	FirstName string
	Handle    string
	Subject   string
	Body      string
}

// SendResult identifies the dispatched lead within the campaign.
type SendResult struct {
	LeadID string
}

type addLeadsRequest struct {
	LeadList []campaignLead `json:"lead_list"`
}

type campaignLead struct {
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

type addLeadsResponse struct {
	OK            bool   `json:"ok"`
	UploadCount   int    `json:"upload_count"`
	TotalLeads    int    `json:"total_leads"`
	AlreadyAdded  int    `json:"already_added_to_campaign"`
	InvalidEmails int    `json:"invalid_email_count"`
	Error         string `json:"error,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey     string
	campaignID string
	baseURL    string
	http       *http.Client
}

// NewClient creates a Smartlead client bound to a single outreach campaign.
func NewClient(apiKey, campaignID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:     apiKey,
		campaignID: campaignID,
		baseURL:    defaultBaseURL,
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

func (c *httpClient) SendEmail(ctx context.Context, req SendRequest) (*SendResult, error) {
	payload := addLeadsRequest{
		LeadList: []campaignLead{{
			Email:     req.Email,
			FirstName: req.FirstName,
			CustomFields: map[string]string{
				"handle":  req.Handle,
				"subject": req.Subject,
				"body":    req.Body,
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "smartlead: marshal request")
	}

	endpoint := fmt.Sprintf("%s/api/v1/campaigns/%s/leads?api_key=%s",
		c.baseURL, c.campaignID, url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "smartlead: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "smartlead: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "smartlead: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WrapHTTPStatus(
			eris.Errorf("smartlead: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var result addLeadsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "smartlead: unmarshal response")
	}
	if !result.OK {
		return nil, eris.Errorf("smartlead: lead rejected: %s", result.Error)
	}

	return &SendResult{LeadID: c.campaignID + ":" + req.Email}, nil
}
