package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/config"
	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/outreach"
	"github.com/apexswarm/leadgen/internal/resilience"
	"github.com/apexswarm/leadgen/pkg/claude"
	"github.com/apexswarm/leadgen/pkg/findymail"
	"github.com/apexswarm/leadgen/pkg/gemini"
	"github.com/apexswarm/leadgen/pkg/perplexity"
)

type testEnv struct {
	research   *mockResearch
	vibe       *mockVibe
	contacts   *mockContacts
	drafter    *mockDrafter
	dedupe     *mockDedupe
	dispatcher *mockDispatcher
	flusher    *recordingFlusher
	orch       *Orchestrator
}

func newTestEnv(cfg config.PipelineConfig) *testEnv {
	e := &testEnv{
		research:   &mockResearch{},
		vibe:       &mockVibe{},
		contacts:   &mockContacts{},
		drafter:    &mockDrafter{},
		dedupe:     &mockDedupe{},
		dispatcher: &mockDispatcher{},
		flusher:    &recordingFlusher{},
	}
	if cfg.StageTimeoutSecs == 0 {
		cfg.StageTimeoutSecs = 5
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.RetryBaseBackoff == 0 {
		cfg.RetryBaseBackoff = time.Millisecond
	}
	e.orch = New(cfg, e.research, e.vibe, e.contacts, e.drafter,
		e.dedupe, e.dispatcher, e.flusher, zap.NewNop())
	return e
}

func (e *testEnv) expectHappyPath() {
	e.research.On("Research", mock.Anything, "janesmith", "instagram").
		Return(&perplexity.ResearchResult{Summary: "surf photographer from Hawaii", Bio: "📸 waves"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(&gemini.VibeCheckResult{Score: 82, Analysis: "strong fit"}, nil)
	e.contacts.On("FindFromHandle", mock.Anything, "janesmith", "instagram").
		Return(&findymail.EmailResult{Email: "jane@example.com"}, nil)
	e.drafter.On("DraftOutreach", mock.Anything, mock.Anything).
		Return(&claude.Draft{Subject: "Collab?", Body: "Loved your reef series."}, nil)
	e.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(&outreach.Result{Channel: outreach.ChannelEmail, DispatchID: "d-1"}, nil)
	e.dedupe.On("Record", mock.Anything, mock.Anything).Return(nil)
}

func TestProcess_HappyPath(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.expectHappyPath()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	assert.Equal(t, "surf photographer from Hawaii", lead.Enrichment.ResearchSummary)
	require.NotNil(t, lead.Enrichment.VibeScore)
	assert.Equal(t, 82, *lead.Enrichment.VibeScore)
	assert.Equal(t, "jane@example.com", lead.Enrichment.Email)
	assert.Contains(t, lead.Enrichment.PersonalizedMessage, "Loved your reef series.")
	assert.Equal(t, outreach.ChannelEmail, lead.Enrichment.OutreachChannel)
	assert.Equal(t, "d-1", lead.Enrichment.DispatchID)
	require.NotNil(t, lead.ProcessedAt)

	e.dedupe.AssertCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestProcess_StatusSequenceMonotonic(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.expectHappyPath()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	_, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	order := map[model.Status]int{
		model.StatusPending:      0,
		model.StatusResearching:  1,
		model.StatusEmailFound:   2,
		model.StatusOutreachSent: 3,
		model.StatusCompleted:    4,
	}
	flushed := e.flusher.flushed()
	require.NotEmpty(t, flushed)
	for i := 1; i < len(flushed); i++ {
		assert.LessOrEqual(t, order[flushed[i-1]], order[flushed[i]],
			"status must never regress: %v", flushed)
	}
	assert.Equal(t, model.StatusCompleted, flushed[len(flushed)-1])
}

func TestProcess_DuplicateSkipsWithoutSpending(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, "janesmith", "instagram").
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).
		Return(&model.DuplicateRecord{LeadID: "earlier-lead", Similarity: 0.98}, nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSkipped, res.FinalStatus)
	require.NotNil(t, res.Duplicate)
	assert.Equal(t, "earlier-lead", res.Duplicate.LeadID)
	assert.Contains(t, lead.ErrorMessage, "duplicate of earlier-lead")

	e.contacts.AssertNotCalled(t, "FindFromHandle", mock.Anything, mock.Anything, mock.Anything)
	e.drafter.AssertNotCalled(t, "DraftOutreach", mock.Anything, mock.Anything)
	e.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_NoContactInfoFails(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(&gemini.VibeCheckResult{Score: 70}, nil)
	e.contacts.On("FindFromHandle", mock.Anything, mock.Anything, mock.Anything).
		Return(&findymail.EmailResult{}, nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.FinalStatus)
	assert.Equal(t, StageContactDiscovery, res.FailedStage)
	assert.Contains(t, lead.ErrorMessage, "no contact information found")
	e.drafter.AssertNotCalled(t, "DraftOutreach", mock.Anything, mock.Anything)
}

func TestProcess_ResearchHardFailure(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.NewPermanentError(assert.AnError, 401))

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.FinalStatus)
	assert.Equal(t, StageResearch, res.FailedStage)
	e.dedupe.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestProcess_VisualAnalysisFailureIsSoft(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(nil, resilience.NewPermanentError(assert.AnError, 400))
	e.contacts.On("FindFromHandle", mock.Anything, mock.Anything, mock.Anything).
		Return(&findymail.EmailResult{Email: "jane@example.com"}, nil)
	e.drafter.On("DraftOutreach", mock.Anything, mock.Anything).
		Return(&claude.Draft{Body: "Hello"}, nil)
	e.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(&outreach.Result{Channel: outreach.ChannelEmail, DispatchID: "d-1"}, nil)
	e.dedupe.On("Record", mock.Anything, mock.Anything).Return(nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	assert.Nil(t, lead.Enrichment.VibeScore)
	assert.Contains(t, lead.ErrorMessage, StageVisualAnalysis)
}

func TestProcess_HardFailureKeepsSoftFailureNotes(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(nil, resilience.NewPermanentError(assert.AnError, 400))
	e.contacts.On("FindFromHandle", mock.Anything, mock.Anything, mock.Anything).
		Return(&findymail.EmailResult{}, nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusError, res.FinalStatus)
	assert.Contains(t, lead.ErrorMessage, StageVisualAnalysis,
		"the earlier soft-failure note must survive the hard failure")
	assert.Contains(t, lead.ErrorMessage, "no contact information found")
}

func TestProcess_VibeFloorSkips(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{MinVibeScore: 50})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(&gemini.VibeCheckResult{Score: 12, Analysis: "weak fit"}, nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusSkipped, res.FinalStatus)
	e.contacts.AssertNotCalled(t, "FindFromHandle", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_VisualAnalysisOnlyForVisualPlatforms(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.contacts.On("FindFromHandle", mock.Anything, mock.Anything, mock.Anything).
		Return(&findymail.EmailResult{Email: "bob@example.com"}, nil)
	e.drafter.On("DraftOutreach", mock.Anything, mock.Anything).
		Return(&claude.Draft{Subject: "Hi", Body: "Hello"}, nil)
	e.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(&outreach.Result{Channel: outreach.ChannelEmail, DispatchID: "d-2"}, nil)
	e.dedupe.On("Record", mock.Anything, mock.Anything).Return(nil)

	lead := model.NewLead("bobjones", "twitter", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	e.vibe.AssertNotCalled(t, "VibeCheck", mock.Anything, mock.Anything)
}

func TestProcess_ResumesFromEmailFound(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(&outreach.Result{Channel: outreach.ChannelEmail, DispatchID: "d-9"}, nil)
	e.dedupe.On("Record", mock.Anything, mock.Anything).Return(nil)

	// A lead that crashed after content generation: everything is enriched,
	// only dispatch remains.
	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	lead.Status = model.StatusEmailFound
	score := 82
	lead.Enrichment = model.Enrichment{
		Bio:                 "📸 waves",
		ResearchSummary:     "summary",
		VibeScore:           &score,
		Email:               "jane@example.com",
		PersonalizedMessage: "Collab?\n\nLoved your reef series.",
	}

	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	e.research.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
	e.vibe.AssertNotCalled(t, "VibeCheck", mock.Anything, mock.Anything)
	e.contacts.AssertNotCalled(t, "FindFromHandle", mock.Anything, mock.Anything, mock.Anything)
	e.drafter.AssertNotCalled(t, "DraftOutreach", mock.Anything, mock.Anything)
	e.dedupe.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestProcess_TerminalLeadIsNoop(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	lead.Status = model.StatusCompleted

	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	assert.Empty(t, e.flusher.flushed(), "terminal lead must not be rewritten")
	e.research.AssertNotCalled(t, "Research", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ReprocessingSameLeadIsIdempotent(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	e.expectHappyPath()

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	_, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)
	firstDispatchID := lead.Enrichment.DispatchID

	// A second intake of the same handle resolves to the same record, which
	// is already terminal: no stage may run again.
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	assert.Equal(t, firstDispatchID, lead.Enrichment.DispatchID)
	e.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestProcess_CancellationStopsBetweenStages(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	_, err := e.orch.Process(ctx, lead)
	require.Error(t, err)
	e.contacts.AssertNotCalled(t, "FindFromHandle", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_RetriesTransientResearchFailure(t *testing.T) {
	e := newTestEnv(config.PipelineConfig{RetryMaxAttempts: 3})
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(assert.AnError, 503)).Once()
	e.research.On("Research", mock.Anything, mock.Anything, mock.Anything).
		Return(&perplexity.ResearchResult{Summary: "summary"}, nil)
	e.dedupe.On("Check", mock.Anything, mock.Anything).Return(nil, nil)
	e.vibe.On("VibeCheck", mock.Anything, mock.Anything).
		Return(&gemini.VibeCheckResult{Score: 60}, nil)
	e.contacts.On("FindFromHandle", mock.Anything, mock.Anything, mock.Anything).
		Return(&findymail.EmailResult{Email: "jane@example.com"}, nil)
	e.drafter.On("DraftOutreach", mock.Anything, mock.Anything).
		Return(&claude.Draft{Body: "Hello"}, nil)
	e.dispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).
		Return(&outreach.Result{Channel: outreach.ChannelEmail, DispatchID: "d-3"}, nil)
	e.dedupe.On("Record", mock.Anything, mock.Anything).Return(nil)

	lead := model.NewLead("janesmith", "instagram", model.SourceSheet)
	res, err := e.orch.Process(context.Background(), lead)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, res.FinalStatus)
	e.research.AssertNumberOfCalls(t, "Research", 2)
}
