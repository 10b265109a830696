package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/perfmatters/internal/extract"
	"github.com/dvloznov/perfmatters/internal/jobs"
	"github.com/dvloznov/perfmatters/internal/jobs/inmemory"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/pipeline"
	"github.com/dvloznov/perfmatters/internal/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	emptyReport   = `{"fetchTime":"2019-03-12T10:28:25Z","requestedUrl":"%s","audits":{}}`
	noAuditReport = `{"fetchTime":"2019-03-12T10:28:25Z","requestedUrl":"%s"}`
)

// MockAuditor is a mock implementation of pipeline.Auditor.
type MockAuditor struct {
	AuditFunc func(ctx context.Context, url string, opts lighthouse.Options) (*lighthouse.Result, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockAuditor) Audit(ctx context.Context, url string, opts lighthouse.Options) (*lighthouse.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()
	return m.AuditFunc(ctx, url, opts)
}

func (m *MockAuditor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockInserter is a mock implementation of sink.Inserter.
type MockInserter struct {
	InsertFunc func(ctx context.Context, table string, row schema.Record) error

	mu     sync.Mutex
	tables []string
}

func (m *MockInserter) Insert(ctx context.Context, table string, row schema.Record) error {
	var err error
	if m.InsertFunc != nil {
		err = m.InsertFunc(ctx, table, row)
	}
	m.mu.Lock()
	m.tables = append(m.tables, table)
	m.mu.Unlock()
	return err
}

func (m *MockInserter) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := append([]string(nil), m.tables...)
	sort.Strings(t)
	return t
}

// MockArchiver is a mock implementation of archive.Archiver.
type MockArchiver struct {
	ArchiveFunc func(ctx context.Context, website string, timestamp int64, report []byte) (string, error)
}

func (m *MockArchiver) Archive(ctx context.Context, website string, timestamp int64, report []byte) (string, error) {
	return m.ArchiveFunc(ctx, website, timestamp, report)
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), zerolog.Nop())
}

func decoded(t *testing.T, format, url string) *lighthouse.Result {
	t.Helper()

	raw := []byte(fmt.Sprintf(format, url))
	res, _, err := lighthouse.Decode(raw)
	require.NoError(t, err, "Setup: invalid report")
	return &lighthouse.Result{Raw: raw, Response: res}
}

func sortedTables() []string {
	t := schema.Tables()
	sort.Strings(t)
	return t
}

func jobsByURL(t *testing.T, store jobs.JobStore) map[string]*jobs.AuditJob {
	t.Helper()

	all, err := store.ListJobs(context.Background(), jobs.JobFilter{})
	require.NoError(t, err)
	out := map[string]*jobs.AuditJob{}
	for _, j := range all {
		out[j.URL] = j
	}
	return out
}

func TestParseURLs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		raw string

		wantURLs    []string
		wantDropped []string
	}{
		"Single URL":            {raw: "https://www.google.com", wantURLs: []string{"https://www.google.com"}},
		"Semicolon separated":   {raw: "https://a.dom; http://b.dom/page ;", wantURLs: []string{"https://a.dom", "http://b.dom/page"}},
		"Malformed are dropped": {raw: "www.google.com;ftp://files.dom;https://a.dom;http://", wantURLs: []string{"https://a.dom"}, wantDropped: []string{"www.google.com", "ftp://files.dom", "http://"}},
		"Empty":                 {raw: " ; ;"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			urls, dropped := pipeline.ParseURLs(tc.raw)
			require.Equal(t, tc.wantURLs, urls)
			require.Equal(t, tc.wantDropped, dropped)
		})
	}
}

func TestRunStoresEveryCategory(t *testing.T) {
	t.Parallel()

	auditor := &MockAuditor{AuditFunc: func(_ context.Context, url string, opts lighthouse.Options) (*lighthouse.Result, error) {
		require.Equal(t, lighthouse.Options{LoadPage: true, Mobile: true, Port: 9222}, opts)
		return decoded(t, emptyReport, url), nil
	}}
	inserter := &MockInserter{}
	store := inmemory.NewStore()

	p := pipeline.NewAuditPipeline(pipeline.Deps{
		Auditor:  auditor,
		Inserter: inserter,
		Store:    store,
		Options:  lighthouse.Options{LoadPage: true, Mobile: true, Port: 9222},
		Timeout:  time.Minute,
	})

	urls := []string{"https://a.dom", "https://b.dom"}
	require.NoError(t, p.Run(quietContext(), urls))

	require.Equal(t, urls, auditor.Calls(), "URLs should be audited in order")
	require.Len(t, inserter.Tables(), 12)

	got := jobsByURL(t, store)
	for _, u := range urls {
		j := got[u]
		require.NotNil(t, j, "missing job for %s", u)
		require.Equal(t, jobs.JobStatusCompleted, j.Status)
		require.Equal(t, jobs.StageIdle, j.Stage)
		require.Equal(t, schema.Tables(), j.Tables)
		require.NotNil(t, j.StartedAt)
		require.NotNil(t, j.CompletedAt)
		require.Empty(t, j.Error)
	}
}

func TestRunContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	auditor := &MockAuditor{AuditFunc: func(_ context.Context, url string, _ lighthouse.Options) (*lighthouse.Result, error) {
		if url == "https://broken.dom" {
			return nil, fmt.Errorf("Audit: %s: %w: exit status 1", url, lighthouse.ErrAuditFailed)
		}
		return decoded(t, emptyReport, url), nil
	}}
	inserter := &MockInserter{}
	store := inmemory.NewStore()
	p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: auditor, Inserter: inserter, Store: store})

	err := p.Run(quietContext(), []string{"https://broken.dom", "https://ok.dom"})
	require.ErrorIs(t, err, pipeline.ErrRunFailed)
	require.ErrorContains(t, err, "1 of 2 URLs failed")

	require.Equal(t, []string{"https://broken.dom", "https://ok.dom"}, auditor.Calls())
	require.Equal(t, sortedTables(), inserter.Tables(), "the second URL should still be stored")

	got := jobsByURL(t, store)
	require.Equal(t, jobs.JobStatusFailed, got["https://broken.dom"].Status)
	require.Contains(t, got["https://broken.dom"].Error, "lighthouse audit failed")
	require.Empty(t, got["https://broken.dom"].Tables)
	require.Equal(t, jobs.JobStatusCompleted, got["https://ok.dom"].Status)
}

func TestRunMissingAuditsInsertsNothing(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		report string
	}{
		"Report without audits":        {report: fmt.Sprintf(noAuditReport, "https://a.dom")},
		"Empty report":                 {report: `{}`},
		"Legacy report without audits": {report: `{"url":"https://a.dom","reportCategories":[]}`},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			auditor := &MockAuditor{AuditFunc: func(_ context.Context, _ string, _ lighthouse.Options) (*lighthouse.Result, error) {
				res, _, err := lighthouse.Decode([]byte(tc.report))
				require.NoError(t, err, "Setup: invalid report")
				return &lighthouse.Result{Raw: []byte(tc.report), Response: res}, nil
			}}
			inserter := &MockInserter{}
			store := inmemory.NewStore()
			p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: auditor, Inserter: inserter, Store: store})

			err := p.Run(quietContext(), []string{"https://a.dom"})
			require.ErrorIs(t, err, pipeline.ErrRunFailed)
			require.Empty(t, inserter.Tables(), "no row should be inserted")

			j := jobsByURL(t, store)["https://a.dom"]
			require.Equal(t, jobs.JobStatusFailed, j.Status)
			require.Contains(t, j.Error, `There were no "audits" in Lighthouse's response`)
		})
	}
}

func TestRunTimeoutIsAFailure(t *testing.T) {
	t.Parallel()

	auditor := &MockAuditor{AuditFunc: func(ctx context.Context, url string, _ lighthouse.Options) (*lighthouse.Result, error) {
		if url == "https://hangs.dom" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return decoded(t, emptyReport, url), nil
	}}
	store := inmemory.NewStore()
	p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: auditor, Store: store, Timeout: 50 * time.Millisecond})

	err := p.Run(quietContext(), []string{"https://hangs.dom", "https://ok.dom"})
	require.ErrorIs(t, err, pipeline.ErrRunFailed)

	got := jobsByURL(t, store)
	require.Equal(t, jobs.JobStatusFailed, got["https://hangs.dom"].Status)
	require.Contains(t, got["https://hangs.dom"].Error, context.DeadlineExceeded.Error())
	require.Equal(t, jobs.JobStatusCompleted, got["https://ok.dom"].Status, "a hung URL should not block the next one")
}

func TestRunWithoutSink(t *testing.T) {
	t.Parallel()

	auditor := &MockAuditor{AuditFunc: func(_ context.Context, url string, _ lighthouse.Options) (*lighthouse.Result, error) {
		return decoded(t, emptyReport, url), nil
	}}
	store := inmemory.NewStore()
	p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: auditor, Store: store})

	require.NoError(t, p.Run(quietContext(), []string{"https://a.dom"}))

	j := jobsByURL(t, store)["https://a.dom"]
	require.Equal(t, jobs.JobStatusCompleted, j.Status)
	require.Equal(t, schema.Tables(), j.Tables, "rows are still extracted without a sink")
}

func TestRunArchivesReports(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		archiveErr error

		wantURI string
	}{
		"Report URI is recorded":            {wantURI: "gs://reports/lighthouse/a.dom/1552386505000-id.json"},
		"Archive failure does not fail URL": {archiveErr: errors.New("bucket not found")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			auditor := &MockAuditor{AuditFunc: func(_ context.Context, url string, _ lighthouse.Options) (*lighthouse.Result, error) {
				return decoded(t, emptyReport, url), nil
			}}
			var archived []byte
			archiver := &MockArchiver{ArchiveFunc: func(_ context.Context, website string, ts int64, report []byte) (string, error) {
				archived = report
				require.Equal(t, "https://a.dom", website)
				require.Equal(t, int64(1552386505000), ts)
				if tc.archiveErr != nil {
					return "", tc.archiveErr
				}
				return "gs://reports/lighthouse/a.dom/1552386505000-id.json", nil
			}}
			store := inmemory.NewStore()
			p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: auditor, Archiver: archiver, Store: store})

			require.NoError(t, p.Run(quietContext(), []string{"https://a.dom"}))
			require.JSONEq(t, fmt.Sprintf(emptyReport, "https://a.dom"), string(archived))

			j := jobsByURL(t, store)["https://a.dom"]
			require.Equal(t, jobs.JobStatusCompleted, j.Status)
			require.Equal(t, tc.wantURI, j.ReportURI)
		})
	}
}

func TestRunWithoutURLs(t *testing.T) {
	t.Parallel()

	p := pipeline.NewAuditPipeline(pipeline.Deps{Auditor: &MockAuditor{}, Store: inmemory.NewStore()})
	require.ErrorIs(t, p.Run(quietContext(), nil), pipeline.ErrNoURLs)
}

func TestExtractAndStoreWaitsForEveryInsert(t *testing.T) {
	t.Parallel()

	errInsert := errors.New("insert failed")
	inserter := &MockInserter{InsertFunc: func(_ context.Context, table string, _ schema.Record) error {
		if table == schema.TableDOMSize {
			return errInsert
		}
		time.Sleep(50 * time.Millisecond)
		return nil
	}}

	step := &pipeline.ExtractAndStoreStep{Categories: extract.All(), Inserter: inserter}
	state := &pipeline.PipelineState{URL: "https://a.dom", Result: decoded(t, emptyReport, "https://a.dom")}

	err := step.Execute(quietContext(), state)
	require.ErrorIs(t, err, errInsert)
	require.ErrorContains(t, err, schema.TableDOMSize)
	require.Equal(t, sortedTables(), inserter.Tables(), "the other inserts should complete before the step returns")
	require.Nil(t, state.Saved)
}

func TestExtractAndStoreWithoutInserter(t *testing.T) {
	t.Parallel()

	step := &pipeline.ExtractAndStoreStep{Categories: extract.All(), Build: schema.Build{ID: "42"}}
	state := &pipeline.PipelineState{URL: "https://a.dom", Result: decoded(t, emptyReport, "https://a.dom")}

	require.NoError(t, step.Execute(quietContext(), state))
	require.Len(t, state.Saved, 6)
	for i, s := range state.Saved {
		require.Equal(t, schema.Tables()[i], s.Table)
		require.Equal(t, s.Table, s.Record.Table())
	}
	dom := state.Saved[1].Record.(schema.DOMSize)
	require.Equal(t, "42", dom.BuildID)
	require.Equal(t, "none", dom.BuildSystem)
}

func TestExecuteUnknownJobStillRunsSteps(t *testing.T) {
	t.Parallel()

	auditor := &MockAuditor{AuditFunc: func(_ context.Context, url string, _ lighthouse.Options) (*lighthouse.Result, error) {
		return decoded(t, emptyReport, url), nil
	}}
	p := pipeline.NewPipeline(inmemory.NewStore(), &pipeline.AuditStep{Auditor: auditor})

	var out bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&out))
	state := &pipeline.PipelineState{JobID: "unknown", URL: "https://a.dom"}

	require.NoError(t, p.Execute(ctx, state))
	require.NotNil(t, state.Result, "a stage that cannot be recorded should not stop the step")
	require.Contains(t, out.String(), "Could not read job")
	require.Contains(t, out.String(), `"job_id":"unknown"`)
}
