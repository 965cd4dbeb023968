package smartlead

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

func TestSendEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/campaigns/camp-9/leads", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))

		var body addLeadsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.LeadList, 1)
		assert.Equal(t, "jane@example.com", body.LeadList[0].Email)
		assert.Equal(t, "Quick question", body.LeadList[0].CustomFields["subject"])
		assert.Equal(t, "Loved your reef series.", body.LeadList[0].CustomFields["body"])

		fmt.Fprint(w, `{"ok": true, "upload_count": 1, "total_leads": 1}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", "camp-9", WithBaseURL(srv.URL))
	got, err := c.SendEmail(context.Background(), SendRequest{
		Email:   "jane@example.com",
		Handle:  "janesmith",
		Subject: "Quick question",
		Body:    "Loved your reef series.",
	})
	require.NoError(t, err)
	assert.Equal(t, "camp-9:jane@example.com", got.LeadID)
}

func TestSendEmail_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok": false, "error": "campaign paused"}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", "camp-9", WithBaseURL(srv.URL))
	_, err := c.SendEmail(context.Background(), SendRequest{Email: "jane@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "campaign paused")
}

func TestSendEmail_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-key", "camp-9", WithBaseURL(srv.URL))
	_, err := c.SendEmail(context.Background(), SendRequest{Email: "jane@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}
