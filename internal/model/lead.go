package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Status represents the current state of a lead in the pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusResearching  Status = "researching"
	StatusEmailFound   Status = "email_found"
	StatusOutreachSent Status = "outreach_sent"
	StatusCompleted    Status = "completed"
	StatusSkipped      Status = "skipped"
	StatusError        Status = "error"
)

// Source tags where a lead entered the system. Informational only — it never
// affects pipeline behavior.
type Source string

const (
	SourceSheet  Source = "sheet"
	SourceEvent  Source = "event"
	SourceImport Source = "import"
)

// ErrInvalidTransition is returned when a status change violates the state
// machine. It indicates a programming or data-integrity bug and must never be
// swallowed.
var ErrInvalidTransition = eris.New("invalid status transition")

// leadNamespace seeds deterministic lead IDs so re-intake of the same handle
// resolves to the same logical entity.
var leadNamespace = uuid.MustParse("8f1c9a52-74de-4b3a-9c41-2f6a90d1e7bb")

// BusinessKey identifies a lead across all stores.
type BusinessKey struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

func (k BusinessKey) String() string {
	return k.Platform + ":" + k.Handle
}

// Enrichment holds the optional fields populated incrementally by the
// pipeline. Each field is written by exactly one stage and, once set, is
// never overwritten by a later run.
type Enrichment struct {
	Bio                 string `json:"bio,omitempty"`                  // research
	FollowerCount       int    `json:"follower_count,omitempty"`      // research
	ResearchSummary     string `json:"research_summary,omitempty"`    // research
	VibeScore           *int   `json:"vibe_score,omitempty"`          // visual_analysis, 0-100
	Email               string `json:"email,omitempty"`               // contact_discovery
	LinkedInURL         string `json:"linkedin_url,omitempty"`        // contact_discovery
	PersonalizedMessage string `json:"personalized_message,omitempty"` // content_generation
	OutreachChannel     string `json:"outreach_channel,omitempty"`    // outreach_dispatch
	DispatchID          string `json:"dispatch_id,omitempty"`         // outreach_dispatch
}

// Lead is the canonical record for one social-media account being processed.
type Lead struct {
	ID           string     `json:"id"`
	Handle       string     `json:"handle"`
	Platform     string     `json:"platform"`
	Status       Status     `json:"status"`
	Source       Source     `json:"source"`
	Enrichment   Enrichment `json:"enrichment"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// NormalizeHandle canonicalizes a raw handle: strips a leading @, lowercases,
// and trims whitespace and trailing slashes.
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimRight(h, "/")
	return strings.ToLower(h)
}

// LeadID derives the deterministic lead ID for a business key.
func LeadID(platform, handle string) string {
	key := BusinessKey{Platform: strings.ToLower(strings.TrimSpace(platform)), Handle: NormalizeHandle(handle)}
	return uuid.NewSHA1(leadNamespace, []byte(key.String())).String()
}

// NewLead creates a pending lead. The ID is a pure function of
// (platform, normalized handle): two intakes of the same handle always
// resolve to the same entity.
func NewLead(handle, platform string, source Source) *Lead {
	now := time.Now().UTC()
	platform = strings.ToLower(strings.TrimSpace(platform))
	handle = NormalizeHandle(handle)
	return &Lead{
		ID:        LeadID(platform, handle),
		Handle:    handle,
		Platform:  platform,
		Status:    StatusPending,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the lead's business key.
func (l *Lead) Key() BusinessKey {
	return BusinessKey{Platform: l.Platform, Handle: l.Handle}
}

// IsTerminal reports whether the status ends a processing attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusSkipped || s == StatusError
}

var validTransitions = map[Status][]Status{
	StatusPending:      {StatusResearching, StatusError},
	StatusResearching:  {StatusEmailFound, StatusSkipped, StatusError},
	StatusEmailFound:   {StatusOutreachSent, StatusError},
	StatusOutreachSent: {StatusCompleted, StatusError},
	// error is re-enterable: a retry restarts the pipeline from the first
	// stage whose enrichment field is still unset.
	StatusError: {StatusPending},
}

// Transition moves the lead to a new status, enforcing the state machine.
// Terminal statuses never regress to non-terminal ones except the explicit
// error→pending retry edge.
func (l *Lead) Transition(to Status) error {
	for _, allowed := range validTransitions[l.Status] {
		if allowed == to {
			now := time.Now().UTC()
			l.Status = to
			if now.After(l.UpdatedAt) {
				l.UpdatedAt = now
			}
			if to.IsTerminal() {
				l.ProcessedAt = &now
			}
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s -> %s", l.Status, to)
}

// ResetForRetry re-enters the pipeline from error, clearing the failure
// message. Enrichment is kept so the retry resumes rather than restarts.
func (l *Lead) ResetForRetry() error {
	if err := l.Transition(StatusPending); err != nil {
		return err
	}
	l.ErrorMessage = ""
	return nil
}

// AddNote appends an advisory note (e.g. a stage soft failure) without
// changing status.
func (l *Lead) AddNote(stage, reason string) {
	note := stage + ": " + reason
	if l.ErrorMessage == "" {
		l.ErrorMessage = note
		return
	}
	l.ErrorMessage += "; " + note
}

// ApplyDelta merges stage output into the enrichment bag. A field already set
// is never overwritten, and empty delta fields never clobber prior data, so
// re-running a stage is idempotent.
func (l *Lead) ApplyDelta(delta Enrichment) {
	e := &l.Enrichment
	if e.Bio == "" && delta.Bio != "" {
		e.Bio = delta.Bio
	}
	if e.FollowerCount == 0 && delta.FollowerCount != 0 {
		e.FollowerCount = delta.FollowerCount
	}
	if e.ResearchSummary == "" && delta.ResearchSummary != "" {
		e.ResearchSummary = delta.ResearchSummary
	}
	if e.VibeScore == nil && delta.VibeScore != nil {
		v := *delta.VibeScore
		e.VibeScore = &v
	}
	if e.Email == "" && delta.Email != "" {
		e.Email = delta.Email
	}
	if e.LinkedInURL == "" && delta.LinkedInURL != "" {
		e.LinkedInURL = delta.LinkedInURL
	}
	if e.PersonalizedMessage == "" && delta.PersonalizedMessage != "" {
		e.PersonalizedMessage = delta.PersonalizedMessage
	}
	if e.OutreachChannel == "" && delta.OutreachChannel != "" {
		e.OutreachChannel = delta.OutreachChannel
	}
	if e.DispatchID == "" && delta.DispatchID != "" {
		e.DispatchID = delta.DispatchID
	}
	now := time.Now().UTC()
	if now.After(l.UpdatedAt) {
		l.UpdatedAt = now
	}
}

// DuplicateRecord is the embedding metadata stored for every lead that was
// successfully contacted. Records are created once and never mutated.
type DuplicateRecord struct {
	LeadID      string    `json:"lead_id"`
	Handle      string    `json:"handle"`
	Platform    string    `json:"platform"`
	Email       string    `json:"email,omitempty"`
	Similarity  float64   `json:"similarity,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
