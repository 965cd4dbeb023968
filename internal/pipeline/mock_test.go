package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/outreach"
	"github.com/apexswarm/leadgen/pkg/claude"
	"github.com/apexswarm/leadgen/pkg/findymail"
	"github.com/apexswarm/leadgen/pkg/gemini"
	"github.com/apexswarm/leadgen/pkg/perplexity"
)

type mockResearch struct{ mock.Mock }

func (m *mockResearch) Research(ctx context.Context, handle, platform string) (*perplexity.ResearchResult, error) {
	args := m.Called(ctx, handle, platform)
	if r := args.Get(0); r != nil {
		return r.(*perplexity.ResearchResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockVibe struct{ mock.Mock }

func (m *mockVibe) VibeCheck(ctx context.Context, req gemini.VibeCheckRequest) (*gemini.VibeCheckResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*gemini.VibeCheckResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockContacts struct{ mock.Mock }

func (m *mockContacts) FindFromHandle(ctx context.Context, handle, platform string) (*findymail.EmailResult, error) {
	args := m.Called(ctx, handle, platform)
	if r := args.Get(0); r != nil {
		return r.(*findymail.EmailResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDrafter struct{ mock.Mock }

func (m *mockDrafter) DraftOutreach(ctx context.Context, req claude.DraftRequest) (*claude.Draft, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*claude.Draft), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDedupe struct{ mock.Mock }

func (m *mockDedupe) Check(ctx context.Context, lead *model.Lead) (*model.DuplicateRecord, error) {
	args := m.Called(ctx, lead)
	if r := args.Get(0); r != nil {
		return r.(*model.DuplicateRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDedupe) Record(ctx context.Context, lead *model.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, lead *model.Lead, msg outreach.Message) (*outreach.Result, error) {
	args := m.Called(ctx, lead, msg)
	if r := args.Get(0); r != nil {
		return r.(*outreach.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingFlusher captures every flushed snapshot in order.
type recordingFlusher struct {
	mu       sync.Mutex
	statuses []model.Status
	err      error
}

func (f *recordingFlusher) Flush(_ context.Context, lead *model.Lead) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, lead.Status)
	return nil
}

func (f *recordingFlusher) flushed() []model.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Status, len(f.statuses))
	copy(out, f.statuses)
	return out
}
