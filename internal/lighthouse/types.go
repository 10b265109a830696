// Package lighthouse models the parts of a Lighthouse report that perfmatters
// stores, and runs the Lighthouse CLI to produce one.
package lighthouse

import "time"

// AuditResponse is the canonical, shape-independent view of a Lighthouse
// report. Both report formats are normalized into it by Decode.
type AuditResponse struct {
	FetchTime         time.Time
	RequestedURL      string
	LighthouseVersion string

	// Audits is keyed by audit id. A nil map means the report carried no
	// audits container at all, which is distinct from an empty one.
	Audits map[string]Audit
}

// Audit is a single named check, e.g. "dom-size".
type Audit struct {
	ID           string
	Title        string
	RawValue     any
	NumericValue *float64
	Details      *Details
}

// Details is the payload attached to an audit.
type Details struct {
	Type                string
	Items               []map[string]any
	OverallSavingsBytes *float64
	OverallSavingsMs    *float64
}

// Timestamp returns the fetch time as epoch milliseconds.
func (r *AuditResponse) Timestamp() int64 {
	if r.FetchTime.IsZero() {
		return 0
	}
	return r.FetchTime.UnixMilli()
}

// Audit returns the named audit and whether it is present.
func (r *AuditResponse) Audit(id string) (Audit, bool) {
	a, ok := r.Audits[id]
	return a, ok
}

// Items returns the details items of the audit, or nil.
func (a Audit) Items() []map[string]any {
	if a.Details == nil {
		return nil
	}
	return a.Details.Items
}

// Value returns the audit's numeric score value, preferring numericValue
// (current reports) over rawValue (older reports).
func (a Audit) Value() any {
	if a.NumericValue != nil {
		return *a.NumericValue
	}
	return a.RawValue
}

// Options mirrors the options accepted by the Lighthouse node module.
type Options struct {
	// LoadPage navigates to the page. When false the previously gathered
	// artifacts are audited instead.
	LoadPage bool
	// Mobile enables mobile emulation. When false the desktop preset is used.
	Mobile bool
	// Port is the Chrome remote debugging port.
	Port int
}

// Result is the outcome of one audit run: the raw report as produced by
// Lighthouse and its decoded form.
type Result struct {
	Raw      []byte
	Response *AuditResponse
}
