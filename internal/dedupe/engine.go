// Package dedupe suppresses repeat outreach by comparing lead profile
// embeddings against an index of previously contacted leads.
package dedupe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/pkg/pinecone"
)

// Embedder computes an embedding vector for profile text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorIndex stores and queries lead embeddings. The hosted Pinecone client
// and the in-memory index both satisfy it.
type VectorIndex interface {
	Query(ctx context.Context, vector []float64, topK int) ([]pinecone.Match, error)
	Upsert(ctx context.Context, id string, vector []float64, metadata map[string]string) error
}

// Engine performs duplicate checks and records contacted leads.
type Engine struct {
	embedder  Embedder
	index     VectorIndex
	threshold float64
	topK      int
	log       *zap.Logger
}

// New creates a dedupe engine. threshold is the cosine similarity above which
// a lead counts as a duplicate.
func New(embedder Embedder, index VectorIndex, threshold float64, topK int, log *zap.Logger) *Engine {
	if topK <= 0 {
		topK = 1
	}
	if log == nil {
		log = zap.L()
	}
	return &Engine{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		topK:      topK,
		log:       log,
	}
}

// Check reports whether the lead duplicates an already-contacted one. The
// check fails open: any embedding or index error logs a warning and returns
// no duplicate, because a missed duplicate costs one redundant outreach while
// a false positive silently drops a lead.
func (e *Engine) Check(ctx context.Context, lead *model.Lead) (*model.DuplicateRecord, error) {
	vector, err := e.embedder.Embed(ctx, profileText(lead))
	if err != nil {
		e.log.Warn("duplicate check failed open: embed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return nil, nil
	}

	matches, err := e.index.Query(ctx, vector, e.topK)
	if err != nil {
		e.log.Warn("duplicate check failed open: query",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		return nil, nil
	}

	for _, m := range matches {
		if m.ID == lead.ID {
			// The lead's own prior record is not a duplicate of itself.
			continue
		}
		if m.Score >= e.threshold {
			rec := &model.DuplicateRecord{
				LeadID:     m.ID,
				Handle:     m.Metadata["handle"],
				Platform:   m.Metadata["platform"],
				Email:      m.Metadata["email"],
				Similarity: m.Score,
			}
			if ts := m.Metadata["processed_at"]; ts != "" {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					rec.ProcessedAt = t
				}
			}
			return rec, nil
		}
	}
	return nil, nil
}

// Record indexes a lead that reached outreach so future intakes of similar
// profiles are suppressed. Only called for leads whose outreach actually
// dispatched.
func (e *Engine) Record(ctx context.Context, lead *model.Lead) error {
	vector, err := e.embedder.Embed(ctx, profileText(lead))
	if err != nil {
		return err
	}

	metadata := map[string]string{
		"handle":       lead.Handle,
		"platform":     lead.Platform,
		"processed_at": time.Now().UTC().Format(time.RFC3339),
	}
	if lead.Enrichment.Email != "" {
		metadata["email"] = lead.Enrichment.Email
	}
	return e.index.Upsert(ctx, lead.ID, vector, metadata)
}

// profileText builds the canonical embedding input. The business key leads so
// identical handles embed near-identically even with sparse enrichment.
func profileText(lead *model.Lead) string {
	parts := []string{lead.Key().String()}
	if lead.Enrichment.Bio != "" {
		parts = append(parts, lead.Enrichment.Bio)
	}
	if lead.Enrichment.ResearchSummary != "" {
		parts = append(parts, lead.Enrichment.ResearchSummary)
	}
	if lead.Enrichment.FollowerCount > 0 {
		parts = append(parts, fmt.Sprintf("followers: %d", lead.Enrichment.FollowerCount))
	}
	return strings.Join(parts, "\n")
}
