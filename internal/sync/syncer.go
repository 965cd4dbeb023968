// Package sync persists lead snapshots after every pipeline stage. Writes are
// non-clobbering merges keyed on the lead's business key, so concurrent
// processing attempts and retries converge instead of overwriting each other.
package sync

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/store"
)

// Syncer flushes in-memory lead state to the store.
type Syncer struct {
	store store.Store
	log   *zap.Logger
}

// New creates a Syncer backed by the given store.
func New(st store.Store, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.L()
	}
	return &Syncer{store: st, log: log}
}

// Flush writes the lead snapshot. If no row exists for the business key the
// lead is created; otherwise the snapshot is merged onto the stored row
// without clobbering enrichment fields already set. A version conflict is
// resolved once by re-reading, re-merging, and retrying.
func (s *Syncer) Flush(ctx context.Context, lead *model.Lead) error {
	err := s.flushOnce(ctx, lead)
	if !eris.Is(err, store.ErrSyncConflict) {
		return err
	}

	s.log.Warn("sync conflict, re-merging",
		zap.String("lead_id", lead.ID),
		zap.String("handle", lead.Handle),
		zap.String("platform", lead.Platform),
	)
	return s.flushOnce(ctx, lead)
}

func (s *Syncer) flushOnce(ctx context.Context, lead *model.Lead) error {
	stored, err := s.store.FindByKey(ctx, lead.Platform, lead.Handle)
	switch {
	case eris.Is(err, store.ErrNotFound):
		lead.Version = 0
		return s.store.Upsert(ctx, lead)
	case err != nil:
		return eris.Wrap(err, "sync: find lead")
	}

	merge(lead, stored)
	return s.store.Upsert(ctx, lead)
}

// merge folds the stored row into the in-flight snapshot: enrichment fields
// set in the store but missing from the snapshot are restored, creation
// metadata comes from the store, and the snapshot adopts the stored version
// so the upsert's optimistic check runs against the row actually read.
func merge(lead, stored *model.Lead) {
	lead.ApplyDelta(stored.Enrichment)
	lead.Version = stored.Version
	lead.CreatedAt = stored.CreatedAt
	if lead.Source == "" {
		lead.Source = stored.Source
	}
	if stored.UpdatedAt.After(lead.UpdatedAt) {
		lead.UpdatedAt = stored.UpdatedAt
	}
	if lead.ProcessedAt == nil {
		lead.ProcessedAt = stored.ProcessedAt
	}
	// A terminal row never regresses to an in-flight snapshot: a racing
	// intake that resolved before the row turned terminal must not revive it.
	// The explicit error -> pending retry edge is the one exception.
	if stored.Status.IsTerminal() && !lead.Status.IsTerminal() &&
		!(stored.Status == model.StatusError && lead.Status == model.StatusPending) {
		lead.Status = stored.Status
		lead.ProcessedAt = stored.ProcessedAt
	}
	// A stored failure note survives unless this snapshot represents a
	// recovered (non-error) state.
	if lead.ErrorMessage == "" && lead.Status == model.StatusError {
		lead.ErrorMessage = stored.ErrorMessage
	}
}
