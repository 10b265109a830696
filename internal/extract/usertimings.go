package extract

import (
	"fmt"
	"strings"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const auditUserTimings = "user-timings"

// UserTimings keeps the performance.measure() entries of the page. Marks have
// no duration and are skipped.
func UserTimings(res *lighthouse.AuditResponse, b schema.Build) (schema.UserTimings, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.UserTimings{}, err
	}

	row := schema.UserTimings{Envelope: env, Metrics: []schema.UserTiming{}}
	audit, _ := res.Audit(auditUserTimings)
	for i, item := range audit.Items() {
		mark, err := isMark(item)
		if err != nil {
			return schema.UserTimings{}, fmt.Errorf("UserTimings: item %d: %w", i, err)
		}
		if mark {
			continue
		}

		m, err := parseUserTiming(item)
		if err != nil {
			return schema.UserTimings{}, fmt.Errorf("UserTimings: item %d: %w", i, err)
		}
		row.Metrics = append(row.Metrics, m)
	}
	return row, nil
}

// Lighthouse 3 flags marks with isMark, later versions with timingType.
func isMark(item map[string]any) (bool, error) {
	mark, err := coerce.Bool(item, "isMark")
	if err != nil || mark {
		return mark, err
	}
	timingType, err := coerce.String(item, "timingType")
	if err != nil {
		return false, err
	}
	return strings.EqualFold(timingType, "mark"), nil
}

func parseUserTiming(item map[string]any) (schema.UserTiming, error) {
	var (
		m   schema.UserTiming
		err error
	)
	if m.MetricName, err = coerce.String(item, "name"); err != nil {
		return m, err
	}
	if m.MetricStartTime, err = coerce.Float(item, "startTime"); err != nil {
		return m, err
	}
	if m.MetricEndTime, err = coerce.Float(item, "endTime"); err != nil {
		return m, err
	}
	if m.MetricDuration, err = coerce.Float(item, "duration"); err != nil {
		return m, err
	}
	return m, nil
}
