package intake

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/apexswarm/leadgen/internal/config"
	"github.com/apexswarm/leadgen/internal/model"
	"github.com/apexswarm/leadgen/internal/pipeline"
	"github.com/apexswarm/leadgen/internal/store"
	"github.com/apexswarm/leadgen/pkg/sheets"
)

// Processor runs a lead through the pipeline.
type Processor interface {
	Process(ctx context.Context, lead *model.Lead) (*pipeline.Result, error)
}

// Poller drains the spreadsheet queue on an interval.
type Poller struct {
	queue     sheets.Client
	store     store.Store
	processor Processor
	cfg       config.PollConfig
	parallel  int
	limiter   *rate.Limiter
	log       *zap.Logger
}

// NewPoller creates a Poller. parallel bounds concurrent lead processing.
func NewPoller(queue sheets.Client, st store.Store, proc Processor, cfg config.PollConfig, parallel int, log *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if parallel <= 0 {
		parallel = 5
	}
	if log == nil {
		log = zap.L()
	}
	return &Poller{
		queue:     queue,
		store:     st,
		processor: proc,
		cfg:       cfg,
		parallel:  parallel,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:       log,
	}
}

// Run polls until the context is canceled. The first batch runs immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("poll batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce processes a single batch from the queue. Rows that duplicate
// another row's business key within the batch are collapsed; each processed
// row is written back with the lead's final status.
func (p *Poller) RunOnce(ctx context.Context) error {
	rows, err := p.queue.ListQueued(ctx, p.cfg.BatchSize)
	if err != nil {
		return eris.Wrap(err, "poll: list queue")
	}
	if len(rows) == 0 {
		return nil
	}
	p.log.Info("picked up queue batch", zap.Int("rows", len(rows)))

	seen := make(map[model.BusinessKey]bool, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)

	for _, row := range rows {
		c, ok := ParseCandidate(row.Handle, row.Platform)
		if !ok {
			p.log.Warn("skipping malformed queue row",
				zap.Int("row", row.RowIndex),
				zap.String("handle", row.Handle),
			)
			p.markRow(ctx, row.RowIndex, string(model.StatusSkipped))
			continue
		}
		key := model.BusinessKey{Platform: c.Platform, Handle: c.Handle}
		if seen[key] {
			p.markRow(ctx, row.RowIndex, string(model.StatusSkipped))
			continue
		}
		seen[key] = true

		g.Go(func() error {
			if err := p.limiter.Wait(gctx); err != nil {
				return err
			}

			lead, err := Resolve(gctx, p.store, c, model.SourceSheet)
			if err != nil {
				p.log.Error("resolve failed", zap.String("handle", c.Handle), zap.Error(err))
				return nil // one bad row does not sink the batch
			}

			res, err := p.processor.Process(gctx, lead)
			if err != nil {
				p.log.Error("processing failed",
					zap.String("lead_id", lead.ID),
					zap.Error(err),
				)
				p.markRow(ctx, row.RowIndex, string(model.StatusError))
				return nil
			}
			p.markRow(ctx, row.RowIndex, string(res.FinalStatus))
			return nil
		})
	}

	return g.Wait()
}

// markRow writes the status back to the sheet. Best effort: the store is the
// source of truth, the sheet is a view.
func (p *Poller) markRow(ctx context.Context, rowIndex int, status string) {
	if err := p.queue.UpdateStatus(ctx, rowIndex, status); err != nil {
		p.log.Warn("failed to update sheet row",
			zap.Int("row", rowIndex),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}
