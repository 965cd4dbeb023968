package findymail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFromHandle_PlatformRouting(t *testing.T) {
	tests := []struct {
		platform  string
		wantField string
		wantValue string
	}{
		{"instagram", "instagram_handle", "janesmith"},
		{"tiktok", "instagram_handle", "janesmith"},
		{"twitter", "twitter_handle", "janesmith"},
		{"x", "twitter_handle", "janesmith"},
		{"linkedin", "linkedin_url", "https://www.linkedin.com/in/janesmith"},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/email-finder", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantValue, body[tt.wantField])

				fmt.Fprint(w, `{"email": "jane@example.com", "confidence": 90}`)
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL))
			got, err := c.FindFromHandle(context.Background(), "janesmith", tt.platform)
			require.NoError(t, err)
			assert.Equal(t, "jane@example.com", got.Email)
		})
	}
}

func TestFindFromHandle_UnsupportedPlatform(t *testing.T) {
	c := NewClient("test-key") // no server: the call must never leave the client
	got, err := c.FindFromHandle(context.Background(), "janesmith", "myspace")
	require.NoError(t, err)
	assert.Empty(t, got.Email)
	assert.Equal(t, "unsupported_platform", got.Status)
}

func TestFindFromHandle_NoEmailFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"email": "", "confidence": 0, "status": "not_found"}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := c.FindFromHandle(context.Background(), "janesmith", "instagram")
	require.NoError(t, err, "an empty result is not an error")
	assert.Empty(t, got.Email)
}

func TestFindFromHandle_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.FindFromHandle(context.Background(), "janesmith", "instagram")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 402")
}
