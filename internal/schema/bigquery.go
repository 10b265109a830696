package schema

import (
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Empty returns a zero row of every table, in table order.
func Empty() []Record {
	return []Record{
		AssetsBlockingFMP{},
		DOMSize{},
		Filmstrip{},
		MainMetrics{},
		OffscreenImages{},
		UserTimings{},
	}
}

// Tables returns the names of every table, in table order.
func Tables() []string {
	recs := Empty()
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Table())
	}
	return names
}

// Schema infers the BigQuery schema of a row type. Scalar columns are
// REQUIRED and slice columns are REPEATED records.
func Schema(rec Record) (bigquery.Schema, error) {
	s, err := bigquery.InferSchema(rec)
	if err != nil {
		return nil, fmt.Errorf("Schema: inferring schema for %s: %w", rec.Table(), err)
	}
	return s, nil
}

// Schemas returns the schema of every table keyed by table name.
func Schemas() (map[string]bigquery.Schema, error) {
	out := make(map[string]bigquery.Schema)
	for _, rec := range Empty() {
		s, err := Schema(rec)
		if err != nil {
			return nil, err
		}
		out[rec.Table()] = s
	}
	return out, nil
}
