// Package extract turns a Lighthouse report into one row per table.
//
// Extractors fail only when the report has no audits container at all. A
// missing audit, or one without details, yields zero values and empty lists.
package extract

import (
	"errors"

	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

// ErrMissingAudits is returned by every extractor when the report carries no
// audits.
var ErrMissingAudits = errors.New(`There were no "audits" in Lighthouse's response`)

// Extractor builds the row of one table from a report.
type Extractor func(res *lighthouse.AuditResponse, b schema.Build) (schema.Record, error)

// Category pairs a table with the extractor that fills it.
type Category struct {
	Table   string
	Extract Extractor
}

// All returns every category in table order.
func All() []Category {
	return []Category{
		{Table: schema.TableAssetsBlockingFMP, Extract: record(AssetsBlockingFMP)},
		{Table: schema.TableDOMSize, Extract: record(DOMSize)},
		{Table: schema.TableFilmstrip, Extract: record(Filmstrip)},
		{Table: schema.TableMainMetrics, Extract: record(MainMetrics)},
		{Table: schema.TableOffscreenImages, Extract: record(OffscreenImages)},
		{Table: schema.TableUserTimings, Extract: record(UserTimings)},
	}
}

func record[T schema.Record](f func(*lighthouse.AuditResponse, schema.Build) (T, error)) Extractor {
	return func(res *lighthouse.AuditResponse, b schema.Build) (schema.Record, error) {
		row, err := f(res, b)
		if err != nil {
			return nil, err
		}
		return row, nil
	}
}

func envelope(res *lighthouse.AuditResponse, b schema.Build) (schema.Envelope, error) {
	if res == nil || res.Audits == nil {
		return schema.Envelope{}, ErrMissingAudits
	}
	return schema.NewEnvelope(res.RequestedURL, b, res.Timestamp()), nil
}
