// Package sheets reads the shared lead queue from a Google Sheets tab.
//
// The tab layout is fixed: column A holds the handle, column B the platform,
// column C the processing status. Rows with an empty or "pending" status are
// eligible for pickup.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/resilience"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Client is the lead queue backed by a spreadsheet tab.
type Client interface {
	ListQueued(ctx context.Context, limit int) ([]Row, error)
	UpdateStatus(ctx context.Context, rowIndex int, status string) error
}

// Row is a single queue entry. RowIndex is the 1-based spreadsheet row,
// used to write the status back.
type Row struct {
	RowIndex int
	Handle   string
	Platform string
	Status   string
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

type valuesUpdateRequest struct {
	Values [][]string `json:"values"`
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
	accessToken   string
	spreadsheetID string
	tabName       string
	baseURL       string
	http          *http.Client
}

// NewClient creates a Sheets queue client. accessToken is an OAuth bearer
// token with spreadsheets scope.
func NewClient(accessToken, spreadsheetID, tabName string, opts ...Option) Client {
	c := &httpClient{
		accessToken:   accessToken,
		spreadsheetID: spreadsheetID,
		tabName:       tabName,
		baseURL:       defaultBaseURL,
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

func (c *httpClient) ListQueued(ctx context.Context, limit int) ([]Row, error) {
	rng := fmt.Sprintf("%s!A2:C", c.tabName)
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, c.spreadsheetID, url.PathEscape(rng))

	respBody, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var result valuesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "sheets: unmarshal response")
	}

	var rows []Row
	for i, cells := range result.Values {
		if limit > 0 && len(rows) >= limit {
			break
		}
		row := Row{RowIndex: i + 2} // A2 is the first data row
		if len(cells) > 0 {
			row.Handle = strings.TrimSpace(cells[0])
		}
		if len(cells) > 1 {
			row.Platform = strings.TrimSpace(cells[1])
		}
		if len(cells) > 2 {
			row.Status = strings.TrimSpace(strings.ToLower(cells[2]))
		}
		if row.Handle == "" {
			continue
		}
		if row.Status != "" && row.Status != "pending" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *httpClient) UpdateStatus(ctx context.Context, rowIndex int, status string) error {
	rng := fmt.Sprintf("%s!C%d", c.tabName, rowIndex)
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.baseURL, c.spreadsheetID, url.PathEscape(rng))

	body, err := json.Marshal(valuesUpdateRequest{Values: [][]string{{status}}})
	if err != nil {
		return eris.Wrap(err, "sheets: marshal request")
	}

	_, err = c.do(ctx, http.MethodPut, endpoint, body)
	return err
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.WrapHTTPStatus(
			eris.Errorf("sheets: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}
	return respBody, nil
}
