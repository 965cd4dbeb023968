package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/apexswarm/leadgen/internal/dedupe"
	"github.com/apexswarm/leadgen/internal/outreach"
	"github.com/apexswarm/leadgen/internal/pipeline"
	leadsync "github.com/apexswarm/leadgen/internal/sync"
	"github.com/apexswarm/leadgen/internal/store"
	"github.com/apexswarm/leadgen/pkg/claude"
	"github.com/apexswarm/leadgen/pkg/findymail"
	"github.com/apexswarm/leadgen/pkg/gemini"
	"github.com/apexswarm/leadgen/pkg/openai"
	"github.com/apexswarm/leadgen/pkg/perplexity"
	"github.com/apexswarm/leadgen/pkg/pinecone"
	"github.com/apexswarm/leadgen/pkg/sheets"
	"github.com/apexswarm/leadgen/pkg/smartlead"
	"github.com/apexswarm/leadgen/pkg/unipile"
)

// env bundles the wired pipeline and its resources for a command's lifetime.
type env struct {
	store store.Store
	orch  *pipeline.Orchestrator
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("failed to close store", zap.Error(err))
	}
}

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv wires every capability client into an Orchestrator.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	log := zap.L()

	researchClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
	vibeClient := gemini.NewClient(cfg.Gemini.Key,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithModel(cfg.Gemini.Model),
	)
	contactClient := findymail.NewClient(cfg.Findymail.Key,
		findymail.WithBaseURL(cfg.Findymail.BaseURL),
	)
	draftClient := claude.NewClient(cfg.Anthropic.Key,
		claude.WithModel(cfg.Anthropic.Model),
		claude.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)
	embedClient := openai.NewClient(cfg.OpenAI.Key,
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithModel(cfg.OpenAI.Model),
	)

	var index dedupe.VectorIndex
	if cfg.Pinecone.IndexHost != "" {
		index = pinecone.NewClient(cfg.Pinecone.Key, cfg.Pinecone.IndexHost)
	} else {
		log.Warn("no vector index configured, duplicate suppression is in-memory only")
		index = dedupe.NewMemIndex()
	}
	dedupeEngine := dedupe.New(embedClient, index,
		cfg.Dedupe.SimilarityThreshold, cfg.Dedupe.TopK, log)

	var emailClient smartlead.Client
	if cfg.Smartlead.Key != "" && cfg.Smartlead.CampaignID != "" {
		emailClient = smartlead.NewClient(cfg.Smartlead.Key, cfg.Smartlead.CampaignID,
			smartlead.WithBaseURL(cfg.Smartlead.BaseURL),
		)
	}
	var smtpSender outreach.MailSender
	if cfg.SMTP.Host != "" {
		smtpSender = outreach.NewSMTPSender(outreach.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	var dmClient unipile.Client
	if cfg.Unipile.Key != "" && cfg.Unipile.AccountID != "" {
		dmClient = unipile.NewClient(cfg.Unipile.Key, cfg.Unipile.AccountID, cfg.Unipile.BaseURL)
	}
	dispatcher := outreach.New(emailClient, smtpSender, dmClient, log)

	syncer := leadsync.New(st, log)

	orch := pipeline.New(cfg.Pipeline,
		researchClient, vibeClient, contactClient, draftClient,
		dedupeEngine, dispatcher, syncer, log,
	)

	return &env{store: st, orch: orch}, nil
}

// initQueue creates the spreadsheet queue client.
func initQueue() (sheets.Client, error) {
	if cfg.Sheets.SpreadsheetID == "" {
		return nil, eris.New("sheets.spreadsheet_id is required")
	}
	return sheets.NewClient(cfg.Sheets.Key, cfg.Sheets.SpreadsheetID, cfg.Sheets.TabName), nil
}
