package dedupe

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/apexswarm/leadgen/pkg/pinecone"
)

// MemIndex is an in-process VectorIndex used when no hosted index is
// configured. Suitable for development and single-node deployments; contents
// do not survive restarts.
type MemIndex struct {
	mu      sync.RWMutex
	vectors map[string]memEntry
}

type memEntry struct {
	values   []float64
	norm     float64
	metadata map[string]string
}

// NewMemIndex creates an empty in-memory vector index.
func NewMemIndex() *MemIndex {
	return &MemIndex{vectors: make(map[string]memEntry)}
}

func (m *MemIndex) Upsert(_ context.Context, id string, vector []float64, metadata map[string]string) error {
	if len(vector) == 0 {
		return eris.New("memindex: empty vector")
	}
	values := make([]float64, len(vector))
	copy(values, vector)

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[id] = memEntry{
		values:   values,
		norm:     floats.Norm(values, 2),
		metadata: meta,
	}
	return nil
}

func (m *MemIndex) Query(_ context.Context, vector []float64, topK int) ([]pinecone.Match, error) {
	if len(vector) == 0 {
		return nil, eris.New("memindex: empty query vector")
	}
	queryNorm := floats.Norm(vector, 2)
	if queryNorm == 0 {
		return nil, eris.New("memindex: zero query vector")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]pinecone.Match, 0, len(m.vectors))
	for id, entry := range m.vectors {
		if len(entry.values) != len(vector) || entry.norm == 0 {
			continue
		}
		score := floats.Dot(entry.values, vector) / (entry.norm * queryNorm)
		matches = append(matches, pinecone.Match{
			ID:       id,
			Score:    score,
			Metadata: entry.metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of indexed vectors.
func (m *MemIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}
