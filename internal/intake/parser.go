// Package intake turns raw lead submissions — spreadsheet rows, webhook
// payloads, queue events, file imports — into pipeline-ready leads.
package intake

import (
	"regexp"
	"strings"

	"github.com/apexswarm/leadgen/internal/model"
)

// Candidate is a raw (handle, platform) pair extracted from a submission,
// before normalization and store resolution.
type Candidate struct {
	Handle   string `json:"handle"`
	Platform string `json:"platform"`
}

// Handles are letters, digits, underscores, and dots, at most 30 characters.
var handleRe = regexp.MustCompile(`^[a-zA-Z0-9_.]{1,30}$`)

var (
	instagramURLRe = regexp.MustCompile(`instagram\.com/([a-zA-Z0-9_.]{1,30})`)
	tiktokURLRe    = regexp.MustCompile(`tiktok\.com/@([a-zA-Z0-9_.]{1,30})`)
	mentionRe      = regexp.MustCompile(`(^|\s)@([a-zA-Z0-9_.]{1,30})`)
)

// ValidHandle reports whether a normalized handle is well-formed.
func ValidHandle(handle string) bool {
	return handleRe.MatchString(handle)
}

// ParseCandidate validates a single explicit submission. Platform defaults to
// instagram when empty. Returns ok=false for malformed handles.
func ParseCandidate(handle, platform string) (Candidate, bool) {
	h := model.NormalizeHandle(handle)
	if !ValidHandle(h) {
		return Candidate{}, false
	}
	p := strings.ToLower(strings.TrimSpace(platform))
	if p == "" {
		p = "instagram"
	}
	return Candidate{Handle: h, Platform: p}, true
}

// ExtractCandidates pulls handles out of free-form text: profile URLs first,
// then @mentions (treated as instagram). Duplicates within the text collapse
// to one candidate.
func ExtractCandidates(text string) []Candidate {
	seen := make(map[model.BusinessKey]bool)
	var out []Candidate

	add := func(handle, platform string) {
		c, ok := ParseCandidate(handle, platform)
		if !ok {
			return
		}
		key := model.BusinessKey{Platform: c.Platform, Handle: c.Handle}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, m := range instagramURLRe.FindAllStringSubmatch(text, -1) {
		add(m[1], "instagram")
	}
	for _, m := range tiktokURLRe.FindAllStringSubmatch(text, -1) {
		add(m[1], "tiktok")
	}
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		add(m[2], "instagram")
	}
	return out
}
