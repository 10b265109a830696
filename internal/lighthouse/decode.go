package lighthouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/perfmatters/internal/coerce"
)

// Shape identifies which Lighthouse report format a document uses.
type Shape int

const (
	// ShapeCurrent is the flat `audits{}` format (Lighthouse 3+).
	ShapeCurrent Shape = iota
	// ShapeLegacy is the `reportCategories[0].audits[]` format (Lighthouse 2).
	ShapeLegacy
)

func (s Shape) String() string {
	if s == ShapeLegacy {
		return "legacy"
	}
	return "current"
}

type currentReport struct {
	FetchTime         string          `json:"fetchTime"`
	RequestedURL      string          `json:"requestedUrl"`
	LighthouseVersion string          `json:"lighthouseVersion"`
	RawAudits         json.RawMessage `json:"audits"`

	// Only used to detect the legacy shape.
	ReportCategories []json.RawMessage `json:"reportCategories"`
}

type legacyReport struct {
	GeneratedTime     string `json:"generatedTime"`
	URL               string `json:"url"`
	LighthouseVersion string `json:"lighthouseVersion"`
	ReportCategories  []struct {
		Audits []struct {
			ID     string `json:"id"`
			Result struct {
				wireAudit
				ExtendedInfo struct {
					Value struct {
						Results []map[string]any `json:"results"`
					} `json:"value"`
				} `json:"extendedInfo"`
			} `json:"result"`
		} `json:"audits"`
	} `json:"reportCategories"`
}

type wireAudit struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	RawValue     any          `json:"rawValue"`
	NumericValue *float64     `json:"numericValue"`
	Details      *wireDetails `json:"details"`
}

type wireDetails struct {
	Type                string           `json:"type"`
	Items               []map[string]any `json:"items"`
	OverallSavingsBytes *float64         `json:"overallSavingsBytes"`
	OverallSavingsMs    *float64         `json:"overallSavingsMs"`
}

// Decode parses a Lighthouse JSON report of either shape into an
// AuditResponse. It fails on invalid JSON, or on a missing or unparseable
// report time when audits are present. A report without audits decodes to a
// response with nil Audits whatever its time.
func Decode(data []byte) (*AuditResponse, Shape, error) {
	var head currentReport
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, ShapeCurrent, fmt.Errorf("Decode: parsing report: %w", err)
	}

	if len(head.RawAudits) == 0 && head.ReportCategories != nil {
		res, err := decodeLegacy(data)
		return res, ShapeLegacy, err
	}

	res, err := decodeCurrent(head)
	return res, ShapeCurrent, err
}

func decodeCurrent(r currentReport) (*AuditResponse, error) {
	res := &AuditResponse{
		RequestedURL:      r.RequestedURL,
		LighthouseVersion: r.LighthouseVersion,
	}

	raw := bytes.TrimSpace(r.RawAudits)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		// Without audits the report is rejected downstream, the time is
		// informational only.
		res.FetchTime, _ = parseTime(r.FetchTime)
		return res, nil
	}

	fetchTime, err := parseTime(r.FetchTime)
	if err != nil {
		return nil, fmt.Errorf("Decode: fetchTime: %w", err)
	}
	res.FetchTime = fetchTime

	var audits map[string]wireAudit
	if err := json.Unmarshal(raw, &audits); err != nil {
		return nil, fmt.Errorf("Decode: parsing audits: %w", err)
	}

	res.Audits = make(map[string]Audit, len(audits))
	for id, a := range audits {
		if a.ID == "" {
			a.ID = id
		}
		res.Audits[id] = a.canonical()
	}
	return res, nil
}

func decodeLegacy(data []byte) (*AuditResponse, error) {
	var r legacyReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("Decode: parsing legacy report: %w", err)
	}

	res := &AuditResponse{
		RequestedURL:      r.URL,
		LighthouseVersion: r.LighthouseVersion,
	}
	if len(r.ReportCategories) == 0 || r.ReportCategories[0].Audits == nil {
		res.FetchTime, _ = parseTime(r.GeneratedTime)
		return res, nil
	}

	generated, err := parseTime(r.GeneratedTime)
	if err != nil {
		return nil, fmt.Errorf("Decode: generatedTime: %w", err)
	}
	res.FetchTime = generated

	res.Audits = make(map[string]Audit, len(r.ReportCategories[0].Audits))
	for _, la := range r.ReportCategories[0].Audits {
		wa := la.Result.wireAudit
		wa.ID = la.ID
		// Older reports kept per-item results under extendedInfo.
		if wa.Details == nil && la.Result.ExtendedInfo.Value.Results != nil {
			wa.Details = &wireDetails{Items: la.Result.ExtendedInfo.Value.Results}
		}
		res.Audits[la.ID] = wa.canonical()
	}
	adaptBlockingResources(res.Audits)
	return res, nil
}

// Lighthouse 2 split render blocking resources in two audits and reported
// sizes in KB. They are merged into the render-blocking-resources audit of
// later versions.
func adaptBlockingResources(audits map[string]Audit) {
	if _, ok := audits["render-blocking-resources"]; ok {
		return
	}

	var items []map[string]any
	found := false
	for _, id := range []string{"link-blocking-first-paint", "script-blocking-first-paint"} {
		a, ok := audits[id]
		if !ok {
			continue
		}
		found = true
		for _, it := range a.Items() {
			size := it["totalKb"]
			if kb, err := coerce.ParseThousands(size); err == nil {
				size = kb * 1024
			}
			items = append(items, map[string]any{
				"url":        it["url"],
				"totalBytes": size,
				"wastedMs":   it["totalMs"],
			})
		}
	}
	if !found {
		return
	}

	if items == nil {
		items = []map[string]any{}
	}
	audits["render-blocking-resources"] = Audit{
		ID:      "render-blocking-resources",
		Details: &Details{Type: "opportunity", Items: items},
	}
}

func (a wireAudit) canonical() Audit {
	out := Audit{
		ID:           a.ID,
		Title:        a.Title,
		RawValue:     a.RawValue,
		NumericValue: a.NumericValue,
	}
	if a.Details != nil {
		out.Details = &Details{
			Type:                a.Details.Type,
			Items:               a.Details.Items,
			OverallSavingsBytes: a.Details.OverallSavingsBytes,
			OverallSavingsMs:    a.Details.OverallSavingsMs,
		}
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing report time")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
