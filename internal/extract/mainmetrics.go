package extract

import (
	"fmt"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const (
	auditMetrics = "metrics"
	// Trace timestamps are in microseconds, timings in milliseconds.
	microsPerMilli = 1000
)

type milestone struct {
	id    string
	title string
	// audit holding the milestone, if any.
	audit string
	// timingKey and tsKey are keys of the metrics audit summary item. An
	// empty tsKey derives the timestamp from navigation start.
	timingKey string
	tsKey     string
}

var milestones = []milestone{
	{"ttfcp", "First Contentful Paint", "first-contentful-paint", "firstContentfulPaint", "observedFirstContentfulPaintTs"},
	{"ttfmp", "First Meaningful Paint", "first-meaningful-paint", "firstMeaningfulPaint", "observedFirstMeaningfulPaintTs"},
	{"psi", "Perceptual Speed Index", "speed-index", "speedIndex", "observedSpeedIndexTs"},
	{"fv", "First Visual Change", "", "observedFirstVisualChange", "observedFirstVisualChangeTs"},
	{"vc100", "Visually Complete 100%", "", "observedLastVisualChange", "observedLastVisualChangeTs"},
	{"ttfcpui", "First CPU Idle", "first-cpu-idle", "firstCPUIdle", ""},
	{"tti", "Time to Interactive", "interactive", "interactive", ""},
}

// MainMetrics reads the loading milestones. Only milestones the trace
// actually observed are kept, and each is stamped with the run timestamp.
func MainMetrics(res *lighthouse.AuditResponse, b schema.Build) (schema.MainMetrics, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.MainMetrics{}, err
	}

	row := schema.MainMetrics{Envelope: env, Metrics: []schema.Timing{}}

	var summary map[string]any
	if a, ok := res.Audit(auditMetrics); ok && len(a.Items()) > 0 {
		summary = a.Items()[0]
	}
	navStart, err := coerce.Float(summary, "observedNavigationStartTs")
	if err != nil {
		return schema.MainMetrics{}, fmt.Errorf("MainMetrics: %w", err)
	}

	for _, m := range milestones {
		timing, err := milestoneTiming(res, summary, m)
		if err != nil {
			return schema.MainMetrics{}, fmt.Errorf("MainMetrics: %s: %w", m.id, err)
		}

		var ts float64
		if m.tsKey != "" {
			if ts, err = coerce.Float(summary, m.tsKey); err != nil {
				return schema.MainMetrics{}, fmt.Errorf("MainMetrics: %s: %w", m.id, err)
			}
		} else if navStart != 0 && timing != 0 {
			ts = navStart + timing*microsPerMilli
		}
		if ts == 0 {
			continue
		}

		row.Metrics = append(row.Metrics, schema.Timing{
			ID:        m.id,
			Title:     m.title,
			Timing:    timing,
			Timestamp: env.Timestamp,
		})
	}
	return row, nil
}

// milestoneTiming prefers the metrics summary and falls back to the
// milestone's own audit.
func milestoneTiming(res *lighthouse.AuditResponse, summary map[string]any, m milestone) (float64, error) {
	if v, ok := summary[m.timingKey]; ok && v != nil {
		return coerce.ParseThousands(v)
	}
	if m.audit == "" {
		return 0, nil
	}
	a, _ := res.Audit(m.audit)
	return coerce.ParseThousands(a.Value())
}
