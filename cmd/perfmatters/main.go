package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/perfmatters/internal/archive"
	"github.com/dvloznov/perfmatters/internal/config"
	"github.com/dvloznov/perfmatters/internal/jobs/inmemory"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/pipeline"
	"github.com/dvloznov/perfmatters/internal/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	cmd := &cobra.Command{
		Use:   "perfmatters",
		Short: "Audit web pages with Lighthouse and store the results in BigQuery",
		Long: "perfmatters audits every URL listed in the URL environment variable " +
			"(separated by " + pipeline.URLSeparator + ") and streams the extracted metrics to BigQuery.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context())
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log := logger.New()
		log.Error().Err(err).Msg("perfmatters failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return err
	}

	log, err := logger.NewWithOptions(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	ctx = logger.WithContext(ctx, log)

	urls, dropped := pipeline.ParseURLs(cfg.URL)
	for _, u := range dropped {
		log.Debug().Str("url", u).Msg("Ignoring malformed URL")
	}

	deps := pipeline.Deps{
		Auditor: lighthouse.NewRunner(cfg.Lighthouse.Bin),
		Store:   inmemory.NewStore(),
		Options: cfg.LighthouseOptions(),
		Build:   cfg.Build(),
		Timeout: cfg.AuditTimeout,
	}

	if cfg.SinkEnabled() {
		ins, err := sink.NewBigQueryInserter(ctx, sink.BigQueryOptions{
			ProjectID:       cfg.BigQuery.ProjectID,
			Dataset:         cfg.BigQuery.Dataset,
			CredentialsFile: cfg.BigQuery.CredentialsFile,
		})
		if err != nil {
			return err
		}
		defer ins.Close()

		if cfg.BigQuery.CreateTables {
			if err := ins.EnsureTables(ctx); err != nil {
				return err
			}
		}
		deps.Inserter = ins
	} else {
		log.Warn().Msg("BIGQUERY_PROJECT_ID is not set, results will not be stored")
	}

	if cfg.ArchiveEnabled() {
		arc, err := archive.NewGCS(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			return err
		}
		defer arc.Close()
		deps.Archiver = arc
	}

	log.Info().
		Int("urls", len(urls)).
		Str("build_id", cfg.BuildID).
		Str("build_system", cfg.BuildSystem).
		Msg("Starting audits")

	if err := pipeline.NewAuditPipeline(deps).Run(ctx, urls); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	log.Info().Msg("All audits stored")
	return nil
}
