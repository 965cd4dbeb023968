package pipeline

import (
	"context"
	"strings"

	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/outreach"
	"github.com/apexswarm/leadgen/internal/resilience"
	"github.com/apexswarm/leadgen/pkg/claude"
	"github.com/apexswarm/leadgen/pkg/gemini"
	"github.com/apexswarm/leadgen/pkg/perplexity"
)

// stageResearch gathers a profile summary. Research is the foundation of
// every later stage, so any failure here is hard.
func (o *Orchestrator) stageResearch(ctx context.Context, lead *model.Lead) model.StageOutcome {
	res, err := callService(ctx, o, "perplexity", StageResearch, func(ctx context.Context) (*perplexity.ResearchResult, error) {
		return o.research.Research(ctx, lead.Handle, lead.Platform)
	})
	if err != nil {
		return model.StageHardFailure(errReason(err))
	}
	return model.StageSuccess(model.Enrichment{
		ResearchSummary: res.Summary,
		Bio:             res.Bio,
	})
}

// stageVisualAnalysis scores brand fit for visual platforms. The score is
// advisory unless a minimum floor is configured, so failures are soft.
func (o *Orchestrator) stageVisualAnalysis(ctx context.Context, lead *model.Lead) model.StageOutcome {
	verdict, err := callService(ctx, o, "gemini", StageVisualAnalysis, func(ctx context.Context) (*gemini.VibeCheckResult, error) {
		return o.vibe.VibeCheck(ctx, gemini.VibeCheckRequest{
			Handle:   lead.Handle,
			Platform: lead.Platform,
			Bio:      lead.Enrichment.Bio,
			Research: lead.Enrichment.ResearchSummary,
		})
	})
	if err != nil {
		return model.StageSoftFailure(errReason(err))
	}
	score := verdict.Score
	return model.StageSuccess(model.Enrichment{VibeScore: &score})
}

// stageContactDiscovery finds a deliverable address. A lead with neither an
// email nor a LinkedIn profile cannot be contacted, which ends the attempt.
func (o *Orchestrator) stageContactDiscovery(ctx context.Context, lead *model.Lead) model.StageOutcome {
	res, err := callService(ctx, o, "findymail", StageContactDiscovery, func(ctx context.Context) (*contactResult, error) {
		r, err := o.contacts.FindFromHandle(ctx, lead.Handle, lead.Platform)
		if err != nil {
			return nil, err
		}
		out := &contactResult{Email: r.Email}
		for _, src := range r.Sources {
			if strings.Contains(src, "linkedin.com/") {
				out.LinkedInURL = src
				break
			}
		}
		return out, nil
	})
	if err != nil {
		return model.StageHardFailure(errReason(err))
	}

	if res.Email == "" && res.LinkedInURL == "" && lead.Enrichment.LinkedInURL == "" {
		return model.StageHardFailure("no contact information found")
	}
	return model.StageSuccess(model.Enrichment{
		Email:       res.Email,
		LinkedInURL: res.LinkedInURL,
	})
}

type contactResult struct {
	Email       string
	LinkedInURL string
}

// stageContentGeneration drafts the personalized message for whichever
// channel the lead can receive.
func (o *Orchestrator) stageContentGeneration(ctx context.Context, lead *model.Lead) model.StageOutcome {
	channel := "email"
	if lead.Enrichment.Email == "" {
		channel = "dm"
	}

	draft, err := callService(ctx, o, "anthropic", StageContentGeneration, func(ctx context.Context) (*claude.Draft, error) {
		return o.drafter.DraftOutreach(ctx, claude.DraftRequest{
			Handle:   lead.Handle,
			Platform: lead.Platform,
			Bio:      lead.Enrichment.Bio,
			Research: lead.Enrichment.ResearchSummary,
			Channel:  channel,
		})
	})
	if err != nil {
		return model.StageHardFailure(errReason(err))
	}

	msg := draft.Body
	if draft.Subject != "" {
		msg = draft.Subject + "\n\n" + draft.Body
	}
	return model.StageSuccess(model.Enrichment{PersonalizedMessage: msg})
}

// stageDispatch delivers the message. The dispatcher handles channel routing
// and the SMTP fallback internally.
func (o *Orchestrator) stageDispatch(ctx context.Context, lead *model.Lead) model.StageOutcome {
	subject, body := splitMessage(lead.Enrichment.PersonalizedMessage)

	res, err := callService(ctx, o, "outreach", StageOutreachDispatch, func(ctx context.Context) (*outreach.Result, error) {
		return o.dispatcher.Dispatch(ctx, lead, outreach.Message{
			Subject: subject,
			Body:    body,
		})
	})
	if err != nil {
		return model.StageHardFailure(errReason(err))
	}
	return model.StageSuccess(model.Enrichment{
		OutreachChannel: res.Channel,
		DispatchID:      res.DispatchID,
	})
}

// splitMessage separates a stored "subject\n\nbody" message back into parts.
// Messages without a blank line are all body.
func splitMessage(msg string) (subject, body string) {
	if idx := strings.Index(msg, "\n\n"); idx > 0 && !strings.Contains(msg[:idx], "\n") {
		return msg[:idx], msg[idx+2:]
	}
	return "", msg
}

// errReason renders a stage error for the lead's error message, flattening
// wrapped causes to a single line.
func errReason(err error) string {
	if resilience.IsPermanent(err) {
		return "permanent: " + err.Error()
	}
	return err.Error()
}
