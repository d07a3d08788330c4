package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/invoicegraph/pkg/batch"
	"github.com/randalmurphal/invoicegraph/pkg/config"
	"github.com/randalmurphal/invoicegraph/pkg/flowgraph/observability"
	"github.com/randalmurphal/invoicegraph/pkg/ledger"
	"github.com/randalmurphal/invoicegraph/pkg/llm"
	"github.com/randalmurphal/invoicegraph/pkg/recon"
	"github.com/randalmurphal/invoicegraph/pkg/store"
)

// resolveQuery picks the document query. An argument replaces the default
// query as given; MAX_ENTRIES only limits the default query.
func resolveQuery(cfg *config.Config, args []string) (string, int, error) {
	if len(args) == 0 {
		return store.DefaultQuery, cfg.MaxEntries, nil
	}
	if err := store.ValidateQuery(args[0]); err != nil {
		return "", 0, err
	}
	return args[0], 0, nil
}

func (a *app) openDocuments() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.EmailDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return store.NewSQLiteStore(a.cfg.EmailDBPath)
}

func (a *app) runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := a.cfg

	query, limit, err := resolveQuery(cfg, args)
	if err != nil {
		return err
	}

	prompts := recon.DefaultPrompts()
	if cfg.PromptsFile != "" {
		if prompts, err = recon.LoadPrompts(cfg.PromptsFile); err != nil {
			return err
		}
	}

	docs, err := a.openDocuments()
	if err != nil {
		return err
	}
	defer docs.Close()

	if cfg.ResetDBState {
		if err := docs.Reset(ctx); err != nil {
			return fmt.Errorf("reset document state: %w", err)
		}
		a.logger.Info("document state reset", "path", cfg.EmailDBPath)
	}

	ldg, err := ledger.Open(cfg.LedgerDriver, cfg.LedgerDSN)
	if err != nil {
		return err
	}
	defer ldg.Close()

	client := llm.NewRouter(llm.ProviderConfig{
		BaseURL:      cfg.BaseURL,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		GeminiAPIKey: cfg.GeminiAPIKey,
	}, llm.DefaultRetry)
	vision := llm.NewRouter(llm.ProviderConfig{
		BaseURL:      cfg.VisionBaseURL,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		GeminiAPIKey: cfg.GeminiAPIKey,
	}, llm.DefaultRetry)

	metrics := observability.NewMetricsRecorder()
	spans := observability.NewSpanManager()
	assistantCfg := recon.Config{
		Client: client,
		Vision: vision,
		Ledger: ldg,
		Models: recon.Models{
			Supervisor:   cfg.SupervisorModel,
			SQL:          cfg.SQLModel,
			FinanceClerk: cfg.FinanceClerkModel,
			Vision:       cfg.VisionModel,
		},
		Prompts:        &prompts,
		AttachmentsDir: cfg.AttachmentsDir,
		MaxSteps:       cfg.MaxSteps,
		MaxCorrections: cfg.MaxCorrections,
		Metrics:        metrics,
		Spans:          spans,
	}
	factory := func() (batch.Runner, error) {
		assistant, err := recon.NewAssistant(assistantCfg)
		if err != nil {
			return nil, err
		}
		return assistant, nil
	}

	ctrl := batch.NewController(docs, factory,
		batch.WithLedger(ldg),
		batch.WithLogger(a.logger),
		batch.WithMetrics(metrics),
		batch.WithBatchSize(cfg.BatchSize),
		batch.WithMaxRetries(cfg.MaxRetries),
	)

	a.logger.Info("starting reconciliation",
		"query", query,
		"limit", limit,
		"supervisor_model", cfg.SupervisorModel,
		"sql_model", cfg.SQLModel,
		"finance_clerk_model", cfg.FinanceClerkModel,
		"vision_model", cfg.VisionModel,
	)
	summary, err := ctrl.Run(ctx, query, limit)
	a.logger.Info("reconciliation finished",
		"processed", summary.Processed,
		"by_status", summary.ByStatus,
		"save_failures", summary.SaveFailures,
		"total_tokens", humanize.Comma(summary.Usage.TotalTokens),
		"total_cost", fmt.Sprintf("$%.4f", summary.Usage.TotalCost),
		"duration", summary.Duration,
	)
	return err
}
