package extract

import (
	"fmt"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const (
	auditDOMSize = "dom-size"
	// Already stored as totalDOMNodes.
	statisticTotalNodes = "Total DOM Nodes"
)

// DOMSize reads the DOM node count and the depth/width statistics of the page.
func DOMSize(res *lighthouse.AuditResponse, b schema.Build) (schema.DOMSize, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.DOMSize{}, err
	}

	row := schema.DOMSize{Envelope: env, Metrics: []schema.DOMMetric{}}
	audit, _ := res.Audit(auditDOMSize)

	row.TotalDOMNodes, err = coerce.ParseInt(audit.Value())
	if err != nil {
		return schema.DOMSize{}, fmt.Errorf("DOMSize: total nodes: %w", err)
	}

	for i, item := range audit.Items() {
		statistic, err := coerce.String(item, "statistic")
		if err != nil {
			return schema.DOMSize{}, fmt.Errorf("DOMSize: item %d: %w", i, err)
		}
		if statistic == statisticTotalNodes {
			continue
		}

		metric, err := parseDOMMetric(item)
		if err != nil {
			return schema.DOMSize{}, fmt.Errorf("DOMSize: item %d: %w", i, err)
		}
		metric.MetricName = statistic
		row.Metrics = append(row.Metrics, metric)
	}
	return row, nil
}

func parseDOMMetric(item map[string]any) (schema.DOMMetric, error) {
	element, err := coerce.Map(item, "element")
	if err != nil {
		return schema.DOMMetric{}, err
	}
	elementType, err := coerce.String(element, "type")
	if err != nil {
		return schema.DOMMetric{}, err
	}
	elementValue, err := coerce.String(element, "value")
	if err != nil {
		return schema.DOMMetric{}, err
	}
	value, err := coerce.Int(item, "value")
	if err != nil {
		return schema.DOMMetric{}, err
	}

	return schema.DOMMetric{
		MetricElementType:  elementType,
		MetricElementValue: elementValue,
		MetricValue:        value,
	}, nil
}
