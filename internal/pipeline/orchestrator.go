// Package pipeline orchestrates the lead enrichment stages: research,
// duplicate check, visual analysis, contact discovery, content generation,
// and outreach dispatch. State is flushed to the store after every stage so
// a crashed run resumes where it stopped.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
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

// Stage names, in execution order.
const (
	StageResearch          = "research"
	StageDuplicateCheck    = "duplicate_check"
	StageVisualAnalysis    = "visual_analysis"
	StageContactDiscovery  = "contact_discovery"
	StageContentGeneration = "content_generation"
	StageOutreachDispatch  = "outreach_dispatch"
)

// Flusher persists a lead snapshot.
type Flusher interface {
	Flush(ctx context.Context, lead *model.Lead) error
}

// DuplicateChecker detects and records contacted leads.
type DuplicateChecker interface {
	Check(ctx context.Context, lead *model.Lead) (*model.DuplicateRecord, error)
	Record(ctx context.Context, lead *model.Lead) error
}

// Dispatcher delivers an outreach message.
type Dispatcher interface {
	Dispatch(ctx context.Context, lead *model.Lead, msg outreach.Message) (*outreach.Result, error)
}

// Result summarizes one processing attempt.
type Result struct {
	Lead        *model.Lead
	FinalStatus model.Status
	FailedStage string
	FailReason  string
	Duplicate   *model.DuplicateRecord
}

// Orchestrator drives a lead through the pipeline.
type Orchestrator struct {
	cfg        config.PipelineConfig
	research   perplexity.Client
	vibe       gemini.Client
	contacts   findymail.Client
	drafter    claude.Client
	dedupe     DuplicateChecker
	dispatcher Dispatcher
	syncer     Flusher
	breakers   *resilience.ServiceBreakers
	locks      *keyLock
	log        *zap.Logger
}

// New creates an Orchestrator with all stage dependencies.
func New(
	cfg config.PipelineConfig,
	researchClient perplexity.Client,
	vibeClient gemini.Client,
	contactClient findymail.Client,
	draftClient claude.Client,
	dedupeEngine DuplicateChecker,
	dispatcher Dispatcher,
	syncer Flusher,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.L()
	}
	return &Orchestrator{
		cfg:        cfg,
		research:   researchClient,
		vibe:       vibeClient,
		contacts:   contactClient,
		drafter:    draftClient,
		dedupe:     dedupeEngine,
		dispatcher: dispatcher,
		syncer:     syncer,
		breakers: resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		}),
		locks: newKeyLock(),
		log:   log,
	}
}

// Process runs the lead through every remaining stage. Leads already in a
// terminal state are returned untouched; a lead in error must be explicitly
// reset before reprocessing. Processing of the same business key is
// serialized.
func (o *Orchestrator) Process(ctx context.Context, lead *model.Lead) (*Result, error) {
	unlock := o.locks.Lock(lead.Key().String())
	defer unlock()

	log := o.log.With(
		zap.String("lead_id", lead.ID),
		zap.String("handle", lead.Handle),
		zap.String("platform", lead.Platform),
	)

	if lead.Status.IsTerminal() {
		log.Info("lead already terminal, skipping", zap.String("status", string(lead.Status)))
		return &Result{Lead: lead, FinalStatus: lead.Status}, nil
	}

	log.Info("processing lead", zap.String("status", string(lead.Status)))

	if lead.Status == model.StatusPending {
		if err := lead.Transition(model.StatusResearching); err != nil {
			return nil, err
		}
		if err := o.syncer.Flush(ctx, lead); err != nil {
			return nil, eris.Wrap(err, "pipeline: flush intake")
		}
	}

	type step struct {
		name string
		run  func(context.Context, *model.Lead) model.StageOutcome
		skip func(*model.Lead) bool
	}

	steps := []step{
		{
			name: StageResearch,
			run:  o.stageResearch,
			skip: func(l *model.Lead) bool { return l.Enrichment.ResearchSummary != "" },
		},
		{
			name: StageVisualAnalysis,
			run:  o.stageVisualAnalysis,
			skip: func(l *model.Lead) bool {
				if l.Platform != "instagram" && l.Platform != "tiktok" {
					return true
				}
				return l.Enrichment.VibeScore != nil
			},
		},
		{
			name: StageContactDiscovery,
			run:  o.stageContactDiscovery,
			skip: func(l *model.Lead) bool {
				return l.Enrichment.Email != "" || l.Enrichment.LinkedInURL != ""
			},
		},
		{
			name: StageContentGeneration,
			run:  o.stageContentGeneration,
			skip: func(l *model.Lead) bool { return l.Enrichment.PersonalizedMessage != "" },
		},
	}

	// The duplicate check runs right after research, while the lead can
	// still be routed to skipped, and before any paid discovery calls.
	runDupCheck := lead.Status == model.StatusResearching

	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: canceled")
		}

		if !st.skip(lead) {
			outcome := st.run(ctx, lead)
			switch outcome.Kind {
			case model.OutcomeSuccess:
				lead.ApplyDelta(outcome.Delta)
			case model.OutcomeSoftFailure:
				lead.AddNote(st.name, outcome.Reason)
				log.Warn("stage soft failure",
					zap.String("stage", st.name),
					zap.String("reason", outcome.Reason),
				)
			case model.OutcomeHardFailure:
				return o.fail(ctx, lead, st.name, outcome.Reason)
			}

			if err := o.syncer.Flush(ctx, lead); err != nil {
				return nil, eris.Wrapf(err, "pipeline: flush after %s", st.name)
			}
		}

		if runDupCheck && st.name == StageResearch {
			runDupCheck = false
			res, err := o.checkDuplicate(ctx, lead, log)
			if err != nil || res != nil {
				return res, err
			}
		}

		// Low-score profiles are dropped before contact discovery spends
		// credits on them.
		if st.name == StageVisualAnalysis && o.belowVibeFloor(lead) {
			return o.skip(ctx, lead, "visual score below threshold")
		}

		if st.name == StageContactDiscovery && lead.Status == model.StatusResearching {
			if err := lead.Transition(model.StatusEmailFound); err != nil {
				return nil, err
			}
			if err := o.syncer.Flush(ctx, lead); err != nil {
				return nil, eris.Wrap(err, "pipeline: flush contact discovery")
			}
		}
	}

	return o.dispatch(ctx, lead, log)
}

// checkDuplicate routes an already-contacted lead to skipped. Returns a
// non-nil Result when processing should stop here.
func (o *Orchestrator) checkDuplicate(ctx context.Context, lead *model.Lead, log *zap.Logger) (*Result, error) {
	dup, err := o.dedupe.Check(ctx, lead)
	if err != nil {
		// The engine fails open internally; an error here is a bug.
		return nil, eris.Wrap(err, "pipeline: duplicate check")
	}
	if dup == nil {
		return nil, nil
	}

	log.Info("duplicate lead, skipping",
		zap.String("matched_lead_id", dup.LeadID),
		zap.Float64("similarity", dup.Similarity),
	)
	lead.AddNote(StageDuplicateCheck, "duplicate of "+dup.LeadID)
	res, err := o.skip(ctx, lead, "")
	if res != nil {
		res.Duplicate = dup
	}
	return res, err
}

func (o *Orchestrator) belowVibeFloor(lead *model.Lead) bool {
	if o.cfg.MinVibeScore <= 0 || lead.Enrichment.VibeScore == nil {
		return false
	}
	return *lead.Enrichment.VibeScore < o.cfg.MinVibeScore
}

// dispatch runs the final stage and records the contacted lead in the dedupe
// index.
func (o *Orchestrator) dispatch(ctx context.Context, lead *model.Lead, log *zap.Logger) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: canceled")
	}

	if lead.Enrichment.DispatchID == "" {
		outcome := o.stageDispatch(ctx, lead)
		if outcome.Kind == model.OutcomeHardFailure {
			return o.fail(ctx, lead, StageOutreachDispatch, outcome.Reason)
		}
		lead.ApplyDelta(outcome.Delta)
	}

	// A resumed lead may already be past this transition.
	if lead.Status == model.StatusEmailFound {
		if err := lead.Transition(model.StatusOutreachSent); err != nil {
			return nil, err
		}
	}
	if err := o.syncer.Flush(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "pipeline: flush dispatch")
	}

	// Best effort: a missed index entry costs at most one duplicate outreach
	// later.
	if err := o.dedupe.Record(ctx, lead); err != nil {
		log.Warn("failed to index contacted lead", zap.Error(err))
	}

	if err := lead.Transition(model.StatusCompleted); err != nil {
		return nil, err
	}
	if err := o.syncer.Flush(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "pipeline: flush completion")
	}

	log.Info("lead completed",
		zap.String("channel", lead.Enrichment.OutreachChannel),
		zap.String("dispatch_id", lead.Enrichment.DispatchID),
	)
	return &Result{Lead: lead, FinalStatus: lead.Status}, nil
}

func (o *Orchestrator) skip(ctx context.Context, lead *model.Lead, reason string) (*Result, error) {
	if reason != "" {
		lead.AddNote("skip", reason)
	}
	if err := lead.Transition(model.StatusSkipped); err != nil {
		return nil, err
	}
	if err := o.syncer.Flush(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "pipeline: flush skip")
	}
	return &Result{Lead: lead, FinalStatus: lead.Status}, nil
}

func (o *Orchestrator) fail(ctx context.Context, lead *model.Lead, stage, reason string) (*Result, error) {
	o.log.Error("stage hard failure",
		zap.String("lead_id", lead.ID),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
	// Appended, not assigned: advisory notes from earlier soft failures stay
	// on the record alongside the hard failure.
	lead.AddNote(stage, reason)
	if err := lead.Transition(model.StatusError); err != nil {
		return nil, err
	}
	if err := o.syncer.Flush(ctx, lead); err != nil {
		return nil, eris.Wrap(err, "pipeline: flush failure")
	}
	return &Result{
		Lead:        lead,
		FinalStatus: lead.Status,
		FailedStage: stage,
		FailReason:  reason,
	}, nil
}

func (o *Orchestrator) stageTimeout() time.Duration {
	if o.cfg.StageTimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(o.cfg.StageTimeoutSecs) * time.Second
}

func (o *Orchestrator) retryConfig(service, operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if o.cfg.RetryMaxAttempts > 0 {
		cfg.MaxAttempts = o.cfg.RetryMaxAttempts
	}
	if o.cfg.RetryBaseBackoff > 0 {
		cfg.InitialBackoff = o.cfg.RetryBaseBackoff
	}
	cfg.OnRetry = resilience.RetryLogger(service, operation)
	return cfg
}

// callService wraps an external call with the stage timeout, retries, and the
// per-service circuit breaker.
func callService[T any](ctx context.Context, o *Orchestrator, service, operation string, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout())
	defer cancel()

	cb := o.breakers.Get(service)
	return resilience.DoVal(stageCtx, o.retryConfig(service, operation), func(ctx context.Context) (T, error) {
		return resilience.ExecuteVal(ctx, cb, fn)
	})
}
