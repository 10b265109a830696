// Package pipeline audits a list of URLs one after the other and stores the
// rows extracted from every report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/perfmatters/internal/archive"
	"github.com/dvloznov/perfmatters/internal/extract"
	"github.com/dvloznov/perfmatters/internal/jobs"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/schema"
	"github.com/dvloznov/perfmatters/internal/sink"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

var (
	// ErrRunFailed is returned by Run when at least one URL failed.
	ErrRunFailed = errors.New("run failed")
	// ErrNoURLs is returned by Run when there is nothing to audit.
	ErrNoURLs = errors.New("no URL to audit")
)

// Pipeline executes a sequence of steps for every URL of a run and records
// the outcome of each URL in a job store.
type Pipeline struct {
	steps []PipelineStep
	store jobs.JobStore
	newID func() string
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(store jobs.JobStore, steps ...PipelineStep) *Pipeline {
	return &Pipeline{
		steps: steps,
		store: store,
		newID: uuid.NewString,
	}
}

// Deps are the collaborators of the standard audit pipeline. Inserter and
// Archiver may be nil.
type Deps struct {
	Auditor  Auditor
	Inserter sink.Inserter
	Archiver archive.Archiver
	Store    jobs.JobStore

	Options lighthouse.Options
	Build   schema.Build
	Timeout time.Duration
}

// NewAuditPipeline creates the standard pipeline: audit, archive the raw
// report, then extract and store all six categories.
func NewAuditPipeline(d Deps) *Pipeline {
	return NewPipeline(d.Store,
		&AuditStep{Auditor: d.Auditor, Options: d.Options, Timeout: d.Timeout},
		&ArchiveStep{Archiver: d.Archiver},
		&ExtractAndStoreStep{Categories: extract.All(), Inserter: d.Inserter, Build: d.Build},
	)
}

// Execute runs all steps sequentially for one URL.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for _, step := range p.steps {
		if s, ok := step.(stagedStep); ok {
			p.setStage(ctx, state.JobID, s.Stage())
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %q failed: %w", step.Name(), err)
		}
	}
	return nil
}

// Run audits urls one at a time. A failing URL is logged and recorded, and
// the next URL is processed regardless. Run returns ErrRunFailed when any
// URL failed.
func (p *Pipeline) Run(ctx context.Context, urls []string) (err error) {
	defer decorate.OnError(&err, "audit run")

	if len(urls) == 0 {
		return ErrNoURLs
	}

	log := logger.FromContext(ctx)
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runURL(ctx, u); err != nil {
			return err
		}
	}

	all, err := p.store.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	failed, err := p.store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	if err != nil {
		return fmt.Errorf("listing failed jobs: %w", err)
	}

	failedURLs := make([]string, 0, len(failed))
	for _, j := range failed {
		failedURLs = append(failedURLs, j.URL)
	}
	log.Info().
		Int("urls", len(all)).
		Int("failed", len(failed)).
		Strs("failed_urls", failedURLs).
		Msg("Run finished")

	if len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d URLs failed", ErrRunFailed, len(failed), len(all))
	}
	return nil
}

// runURL processes one URL. Only job store errors are returned; a failure of
// the URL itself is recorded on its job.
func (p *Pipeline) runURL(ctx context.Context, u string) error {
	job := &jobs.AuditJob{
		JobID:     p.newID(),
		URL:       u,
		Status:    jobs.JobStatusPending,
		Stage:     jobs.StageIdle,
		CreatedAt: time.Now(),
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job for %s: %w", u, err)
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"url":    u,
		"job_id": job.JobID,
	})
	ctx = logger.WithContext(ctx, log)

	if err := p.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusRunning, ""); err != nil {
		return fmt.Errorf("updating job for %s: %w", u, err)
	}

	log.Info().Msg("Auditing")
	state := &PipelineState{JobID: job.JobID, URL: u}
	runErr := p.Execute(ctx, state)

	if err := p.recordOutcome(ctx, job.JobID, state); err != nil {
		return err
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("Audit failed")
		if err := p.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusFailed, runErr.Error()); err != nil {
			return fmt.Errorf("updating job for %s: %w", u, err)
		}
		return nil
	}

	log.Info().Int("rows", len(state.Saved)).Msg("Audit stored")
	if err := p.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusCompleted, ""); err != nil {
		return fmt.Errorf("updating job for %s: %w", u, err)
	}
	return nil
}

func (p *Pipeline) recordOutcome(ctx context.Context, jobID string, state *PipelineState) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reading job %s: %w", jobID, err)
	}
	job.ReportURI = state.ReportURI
	job.Tables = nil
	for _, s := range state.Saved {
		job.Tables = append(job.Tables, s.Table)
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job %s: %w", jobID, err)
	}
	return nil
}

func (p *Pipeline) setStage(ctx context.Context, jobID string, stage jobs.Stage) {
	if jobID == "" {
		return
	}
	log := logger.FromContext(ctx)
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Could not read job")
		return
	}
	job.Stage = stage
	if err := p.store.SaveJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Could not update job stage")
	}
}
