package claude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantErr     bool
		wantSubject string
		wantBody    string
	}{
		{
			name:        "plain_json",
			text:        `{"subject": "Collab?", "body": "Loved your reef series."}`,
			wantSubject: "Collab?",
			wantBody:    "Loved your reef series.",
		},
		{
			name:     "code_fenced",
			text:     "```json\n{\"subject\": \"\", \"body\": \"Hey!\"}\n```",
			wantBody: "Hey!",
		},
		{
			name:     "surrounding_prose",
			text:     `Sure, here you go: {"subject": "", "body": "Hi Jane"}`,
			wantBody: "Hi Jane",
		},
		{name: "no_json", text: "I can't help with that", wantErr: true},
		{name: "empty_body", text: `{"subject": "Hi", "body": "  "}`, wantErr: true},
		{name: "malformed", text: `{"subject": 1, "body": 2}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDraft(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, got.Subject)
			assert.Equal(t, tt.wantBody, got.Body)
		})
	}
}
