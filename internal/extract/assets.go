package extract

import (
	"fmt"
	"strings"

	"github.com/dvloznov/perfmatters/internal/coerce"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/schema"
)

const auditRenderBlocking = "render-blocking-resources"

// AssetsBlockingFMP collects the resources delaying the first paint. Bytes
// and blocking time are summed separately for stylesheets and scripts; a
// resource served from a /css/ path counts as a stylesheet whatever its
// extension.
func AssetsBlockingFMP(res *lighthouse.AuditResponse, b schema.Build) (schema.AssetsBlockingFMP, error) {
	env, err := envelope(res, b)
	if err != nil {
		return schema.AssetsBlockingFMP{}, err
	}

	row := schema.AssetsBlockingFMP{Envelope: env, Assets: []schema.Asset{}}
	audit, _ := res.Audit(auditRenderBlocking)
	for i, item := range audit.Items() {
		asset, err := parseAsset(item)
		if err != nil {
			return schema.AssetsBlockingFMP{}, fmt.Errorf("AssetsBlockingFMP: item %d: %w", i, err)
		}
		row.Assets = append(row.Assets, asset)

		switch {
		case asset.Type == "css" || strings.Contains(asset.URL, "/css/"):
			row.TotalLinksBytes += asset.TotalBytes
			row.TotalLinksMs += asset.TotalMs
		case asset.Type == "js":
			row.TotalScriptsBytes += asset.TotalBytes
			row.TotalScriptsMs += asset.TotalMs
		}
	}
	return row, nil
}

func parseAsset(item map[string]any) (schema.Asset, error) {
	url, err := coerce.String(item, "url")
	if err != nil {
		return schema.Asset{}, err
	}
	totalBytes, err := coerce.Float(item, "totalBytes")
	if err != nil {
		return schema.Asset{}, err
	}
	wastedMs, err := coerce.Float(item, "wastedMs")
	if err != nil {
		return schema.Asset{}, err
	}
	ext, err := coerce.ExtensionOf(url)
	if err != nil {
		return schema.Asset{}, err
	}

	return schema.Asset{
		URL:        url,
		Type:       ext,
		TotalBytes: totalBytes,
		TotalMs:    wastedMs,
	}, nil
}
