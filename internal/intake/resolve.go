package intake

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/store"
)

// Resolve maps a candidate to its lead record, creating a pending one if the
// business key is new. Re-submissions of a known handle return the existing
// lead unchanged, so intake is idempotent.
func Resolve(ctx context.Context, st store.Store, c Candidate, source model.Source) (*model.Lead, error) {
	handle := model.NormalizeHandle(c.Handle)
	lead, err := st.FindByKey(ctx, c.Platform, handle)
	switch {
	case err == nil:
		return lead, nil
	case eris.Is(err, store.ErrNotFound):
		return model.NewLead(handle, c.Platform, source), nil
	default:
		return nil, eris.Wrap(err, "intake: resolve lead")
	}
}
