package extract

import (
	"fmt"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const auditOffscreenImages = "offscreen-images"

// OffscreenImages reads the images that could be deferred and the savings
// Lighthouse estimates for doing so.
func OffscreenImages(res *lighthouse.AuditResponse, b schema.Build) (schema.OffscreenImages, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.OffscreenImages{}, err
	}

	row := schema.OffscreenImages{Envelope: env, Images: []schema.OffscreenImage{}}
	audit, _ := res.Audit(auditOffscreenImages)
	if d := audit.Details; d != nil {
		if d.OverallSavingsBytes != nil {
			row.PotentialSavingsInBytes = *d.OverallSavingsBytes
		}
		if d.OverallSavingsMs != nil {
			row.PotentialSavingsInMs = *d.OverallSavingsMs
		}
	}

	for i, item := range audit.Items() {
		img, err := parseOffscreenImage(item)
		if err != nil {
			return schema.OffscreenImages{}, fmt.Errorf("OffscreenImages: item %d: %w", i, err)
		}
		row.Images = append(row.Images, img)
	}
	return row, nil
}

func parseOffscreenImage(item map[string]any) (schema.OffscreenImage, error) {
	var (
		img schema.OffscreenImage
		err error
	)
	if img.URL, err = coerce.String(item, "url"); err != nil {
		return img, err
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"requestStartTime", &img.RequestStartTime},
		{"totalBytes", &img.TotalBytes},
		{"wastedBytes", &img.WastedBytes},
		{"wastedMs", &img.WastedMs},
		{"wastedPercent", &img.WastedPercent},
	}
	for _, f := range floats {
		if *f.dst, err = coerce.Float(item, f.key); err != nil {
			return schema.OffscreenImage{}, err
		}
	}
	return img, nil
}
