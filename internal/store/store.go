package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/model"
)

// ErrNotFound is returned when no lead matches the lookup key.
var ErrNotFound = eris.New("lead not found")

// ErrSyncConflict is returned when an upsert loses a version race: the stored
// row changed since the caller read it. Callers should re-read, re-merge, and
// retry.
var ErrSyncConflict = eris.New("lead version conflict")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Status   model.Status `json:"status,omitempty"`
	Platform string       `json:"platform,omitempty"`
	Limit    int          `json:"limit,omitempty"`
	Offset   int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline. Leads are
// keyed by their business key (platform, normalized handle); the surrogate ID
// is deterministic from that key.
type Store interface {
	// FindByKey looks up a lead by its business key. Returns ErrNotFound
	// when no lead exists for the key.
	FindByKey(ctx context.Context, platform, handle string) (*model.Lead, error)

	// Upsert writes a lead snapshot. A lead with Version 0 is inserted;
	// otherwise the stored row is updated only if its version still matches,
	// returning ErrSyncConflict when it does not. On success the lead's
	// Version is bumped in place.
	Upsert(ctx context.Context, lead *model.Lead) error

	// List returns leads matching the filter, most recently updated first.
	List(ctx context.Context, filter LeadFilter) ([]model.Lead, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
