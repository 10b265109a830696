package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/perfmatters/internal/jobs"
)

// Store is an in-memory implementation of JobStore.
// It is safe for concurrent use and keeps jobs for the lifetime of the process.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*jobs.AuditJob
	order []string

	now func() time.Time
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.AuditJob),
		now:  time.Now,
	}
}

// SaveJob implements the JobStore interface.
// It saves or updates a job in memory.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AuditJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; !exists {
		s.order = append(s.order, job.JobID)
	}
	s.jobs[job.JobID] = clone(job)

	return nil
}

// GetJob implements the JobStore interface.
// It retrieves a job by ID from memory.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AuditJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	return clone(job), nil
}

// ListJobs implements the JobStore interface.
// Jobs are returned in the order they were first saved.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AuditJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.AuditJob{}
	for _, id := range s.order {
		job := s.jobs[id]
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		result = append(result, clone(job))
	}

	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
// Moving to running stamps StartedAt, a terminal status stamps CompletedAt.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	now := s.now()
	job.Status = status
	switch {
	case status == jobs.JobStatusRunning && job.StartedAt == nil:
		job.StartedAt = &now
	case job.Done():
		job.CompletedAt = &now
		job.Stage = jobs.StageIdle
	}
	if errorMsg != "" {
		job.Error = errorMsg
	}

	return nil
}

// clone copies a job so callers cannot modify stored state.
func clone(job *jobs.AuditJob) *jobs.AuditJob {
	c := *job
	if job.Tables != nil {
		c.Tables = append([]string(nil), job.Tables...)
	}
	return &c
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
