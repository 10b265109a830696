package extract

import (
	"fmt"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const auditScreenshots = "screenshot-thumbnails"

// Filmstrip collects the load screenshots. Every frame carries the run
// timestamp, its position in the load is kept in Timing.
func Filmstrip(res *lighthouse.AuditResponse, b schema.Build) (schema.Filmstrip, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.Filmstrip{}, err
	}

	row := schema.Filmstrip{Envelope: env, Screenshots: []schema.Screenshot{}}
	audit, _ := res.Audit(auditScreenshots)
	for i, item := range audit.Items() {
		data, err := coerce.String(item, "data")
		if err != nil {
			return schema.Filmstrip{}, fmt.Errorf("Filmstrip: item %d: %w", i, err)
		}
		timing, err := coerce.Float(item, "timing")
		if err != nil {
			return schema.Filmstrip{}, fmt.Errorf("Filmstrip: item %d: %w", i, err)
		}

		row.Screenshots = append(row.Screenshots, schema.Screenshot{
			Data:      data,
			Timing:    timing,
			Timestamp: env.Timestamp,
		})
	}
	return row, nil
}
