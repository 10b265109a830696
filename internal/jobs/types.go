package jobs

import (
	"context"
	"time"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the URL is waiting to be audited.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the URL is being audited or stored.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every row of the URL was stored.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the audit or one of the inserts failed.
	JobStatusFailed JobStatus = "failed"
)

// Stage is the step a running job is in.
type Stage string

const (
	StageIdle     Stage = "idle"
	StageAuditing Stage = "auditing"
	StageStoring  Stage = "storing"
)

// AuditJob tracks the audit of one URL during a run.
type AuditJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// URL is the audited page.
	URL string `json:"url"`

	Status JobStatus `json:"status"`
	Stage  Stage     `json:"stage"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the audit started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ReportURI is where the raw report was archived, if it was.
	ReportURI string `json:"report_uri,omitempty"`

	// Tables lists the tables a row was stored in.
	Tables []string `json:"tables,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *AuditJob) Done() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AuditJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*AuditJob, error)

	// ListJobs retrieves jobs in creation order with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AuditJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status. Empty matches every job.
	Status JobStatus
}
