package pipeline

import (
	"context"

	"github.com/dvloznov/perfmatters/internal/lighthouse"
)

// Auditor runs a Lighthouse audit of one URL.
// This interface enables mocking and testing of the audit process.
type Auditor interface {
	Audit(ctx context.Context, url string, opts lighthouse.Options) (*lighthouse.Result, error)
}

var _ Auditor = (*lighthouse.Runner)(nil)
