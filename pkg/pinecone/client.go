// Package pinecone provides a minimal client for a hosted Pinecone index.
package pinecone

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

// Client queries and writes a vector index.
type Client interface {
	Query(ctx context.Context, vector []float64, topK int) ([]Match, error)
	Upsert(ctx context.Context, id string, vector []float64, metadata map[string]string) error
}

// Match is a single nearest-neighbor result.
type Match struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type queryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

type upsertRequest struct {
	Vectors []vectorRecord `json:"vectors"`
}

type vectorRecord struct {
	ID       string            `json:"id"`
	Values   []float64         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
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
	indexHost string
	http      *http.Client
}

// NewClient creates a Pinecone data-plane client for the given index host
// (e.g. "https://leads-abc123.svc.us-east-1.pinecone.io").
func NewClient(apiKey, indexHost string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		indexHost: indexHost,
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

func (c *httpClient) Query(ctx context.Context, vector []float64, topK int) ([]Match, error) {
	var result queryResponse
	err := c.post(ctx, "/query", queryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Matches, nil
}

func (c *httpClient) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]string) error {
	return c.post(ctx, "/vectors/upsert", upsertRequest{
		Vectors: []vectorRecord{{ID: id, Values: vector, Metadata: metadata}},
	}, nil)
}

func (c *httpClient) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return eris.Wrap(err, "pinecone: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.indexHost+path, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "pinecone: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "pinecone: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "pinecone: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return resilience.WrapHTTPStatus(
			eris.Errorf("pinecone: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "pinecone: unmarshal response")
		}
	}
	return nil
}
