package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/perfmatters/internal/archive"
	"github.com/dvloznov/perfmatters/internal/extract"
	"github.com/dvloznov/perfmatters/internal/jobs"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/schema"
	"github.com/dvloznov/perfmatters/internal/sink"
	"golang.org/x/sync/errgroup"
)

// PipelineStep represents a single step of the audit of one URL.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// stagedStep is implemented by steps that move the job to a new stage.
type stagedStep interface {
	Stage() jobs.Stage
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	JobID string
	URL   string

	Result    *lighthouse.Result
	ReportURI string
	Saved     []sink.Saved
}

// AuditStep runs Lighthouse against the URL. Exceeding Timeout fails the
// audit like any other Lighthouse error.
type AuditStep struct {
	Auditor Auditor
	Options lighthouse.Options
	Timeout time.Duration
}

func (s *AuditStep) Name() string      { return "audit" }
func (s *AuditStep) Stage() jobs.Stage { return jobs.StageAuditing }

func (s *AuditStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	res, err := s.Auditor.Audit(ctx, state.URL, s.Options)
	if err != nil {
		return err
	}
	if res == nil || res.Response == nil {
		return fmt.Errorf("AuditStep: %s: %w: empty result", state.URL, lighthouse.ErrAuditFailed)
	}
	state.Result = res
	return nil
}

// ArchiveStep keeps the raw report. A nil Archiver skips the step and an
// upload failure is only logged.
type ArchiveStep struct {
	Archiver archive.Archiver
}

func (s *ArchiveStep) Name() string { return "archive" }

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archiver == nil || state.Result == nil {
		return nil
	}

	log := logger.FromContext(ctx)
	res := state.Result.Response
	uri, err := s.Archiver.Archive(ctx, state.URL, res.Timestamp(), state.Result.Raw)
	if err != nil {
		log.Warn().Err(err).Str("url", state.URL).Msg("Could not archive lighthouse report")
		return nil
	}

	log.Debug().Str("url", state.URL).Str("report_uri", uri).Msg("Archived lighthouse report")
	state.ReportURI = uri
	return nil
}

// ExtractAndStoreStep builds the row of every category and saves it. The
// categories run concurrently; all of them run to completion and the first
// error is returned.
type ExtractAndStoreStep struct {
	Categories []extract.Category
	// Inserter may be nil, rows are then only extracted.
	Inserter sink.Inserter
	Build    schema.Build
}

func (s *ExtractAndStoreStep) Name() string      { return "extract and store" }
func (s *ExtractAndStoreStep) Stage() jobs.Stage { return jobs.StageStoring }

func (s *ExtractAndStoreStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Result == nil {
		return fmt.Errorf("ExtractAndStoreStep: %s: no audit result", state.URL)
	}
	res := state.Result.Response

	// No WithContext: a failing category must not cancel the inserts of the others.
	var g errgroup.Group
	saved := make([]sink.Saved, len(s.Categories))
	for i, c := range s.Categories {
		g.Go(func() error {
			log := logger.FromContext(ctx).With().
				Str("url", state.URL).
				Str("category", c.Table).
				Logger()

			log.Debug().Msg("Gathering data")
			rec, err := c.Extract(res, s.Build)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Table, err)
			}
			log.Trace().Interface("row", rec).Msg("Gathered data")

			if s.Inserter != nil {
				log.Debug().Msg("Saving data to BigQuery")
			}
			sv, err := sink.Save(ctx, s.Inserter, rec)
			if err != nil {
				return fmt.Errorf("%s: %w", c.Table, err)
			}
			saved[i] = sv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	state.Saved = saved
	return nil
}
