// Package schema defines the rows perfmatters writes to BigQuery, one type
// per table.
package schema

// Table names in the perfmatters dataset.
const (
	TableAssetsBlockingFMP = "assets_blocking_fmp"
	TableDOMSize           = "dom_size"
	TableFilmstrip         = "filmstrip"
	TableMainMetrics       = "main_metrics"
	TableOffscreenImages   = "offscreen_images"
	TableUserTimings       = "user_timings"
)

// DefaultBuildValue is stored when no build identifier is configured.
const DefaultBuildValue = "none"

// Build identifies the CI build that triggered a run.
type Build struct {
	ID     string
	System string
}

// Record is a row bound for a single table.
type Record interface {
	Table() string
}

// Envelope holds the columns shared by every table.
type Envelope struct {
	Website     string `bigquery:"website" json:"website"`
	BuildID     string `bigquery:"build_id" json:"build_id"`
	BuildSystem string `bigquery:"build_system" json:"build_system"`
	Timestamp   int64  `bigquery:"timestamp" json:"timestamp"`
}

// NewEnvelope stamps a row with the audited website, the build and the run
// timestamp in epoch milliseconds. Empty build fields become "none".
func NewEnvelope(website string, b Build, timestamp int64) Envelope {
	id, system := b.ID, b.System
	if id == "" {
		id = DefaultBuildValue
	}
	if system == "" {
		system = DefaultBuildValue
	}
	return Envelope{
		Website:     website,
		BuildID:     id,
		BuildSystem: system,
		Timestamp:   timestamp,
	}
}

// AssetsBlockingFMP lists the stylesheets and scripts that block the first
// paint.
type AssetsBlockingFMP struct {
	Envelope
	TotalLinksBytes   float64 `bigquery:"totalLinksBytes" json:"totalLinksBytes"`
	TotalLinksMs      float64 `bigquery:"totalLinksMs" json:"totalLinksMs"`
	TotalScriptsBytes float64 `bigquery:"totalScriptsBytes" json:"totalScriptsBytes"`
	TotalScriptsMs    float64 `bigquery:"totalScriptsMs" json:"totalScriptsMs"`
	Assets            []Asset `bigquery:"assets" json:"assets"`
}

// Asset is a single render blocking resource.
type Asset struct {
	URL        string  `bigquery:"url" json:"url"`
	Type       string  `bigquery:"type" json:"type"`
	TotalBytes float64 `bigquery:"totalBytes" json:"totalBytes"`
	TotalMs    float64 `bigquery:"totalMs" json:"totalMs"`
}

func (AssetsBlockingFMP) Table() string { return TableAssetsBlockingFMP }

// DOMSize holds the node count of the page and its deepest/widest elements.
type DOMSize struct {
	Envelope
	TotalDOMNodes int64       `bigquery:"totalDOMNodes" json:"totalDOMNodes"`
	Metrics       []DOMMetric `bigquery:"metrics" json:"metrics"`
}

type DOMMetric struct {
	MetricElementType  string `bigquery:"metricElementType" json:"metricElementType"`
	MetricElementValue string `bigquery:"metricElementValue" json:"metricElementValue"`
	MetricName         string `bigquery:"metricName" json:"metricName"`
	MetricValue        int64  `bigquery:"metricValue" json:"metricValue"`
}

func (DOMSize) Table() string { return TableDOMSize }

// Filmstrip holds the screenshots taken while the page loaded.
type Filmstrip struct {
	Envelope
	Screenshots []Screenshot `bigquery:"screenshots" json:"screenshots"`
}

type Screenshot struct {
	Data      string  `bigquery:"data" json:"data"`
	Timing    float64 `bigquery:"timing" json:"timing"`
	Timestamp int64   `bigquery:"timestamp" json:"timestamp"`
}

func (Filmstrip) Table() string { return TableFilmstrip }

// MainMetrics holds the loading milestones of the page.
type MainMetrics struct {
	Envelope
	Metrics []Timing `bigquery:"metrics" json:"metrics"`
}

type Timing struct {
	ID        string  `bigquery:"id" json:"id"`
	Title     string  `bigquery:"title" json:"title"`
	Timing    float64 `bigquery:"timing" json:"timing"`
	Timestamp int64   `bigquery:"timestamp" json:"timestamp"`
}

func (MainMetrics) Table() string { return TableMainMetrics }

// OffscreenImages holds the images that could be lazy loaded.
type OffscreenImages struct {
	Envelope
	PotentialSavingsInBytes float64          `bigquery:"potentialSavingsInBytes" json:"potentialSavingsInBytes"`
	PotentialSavingsInMs    float64          `bigquery:"potentialSavingsInMs" json:"potentialSavingsInMs"`
	Images                  []OffscreenImage `bigquery:"images" json:"images"`
}

type OffscreenImage struct {
	URL              string  `bigquery:"url" json:"url"`
	RequestStartTime float64 `bigquery:"requestStartTime" json:"requestStartTime"`
	TotalBytes       float64 `bigquery:"totalBytes" json:"totalBytes"`
	WastedBytes      float64 `bigquery:"wastedBytes" json:"wastedBytes"`
	WastedMs         float64 `bigquery:"wastedMs" json:"wastedMs"`
	WastedPercent    float64 `bigquery:"wastedPercent" json:"wastedPercent"`
}

func (OffscreenImages) Table() string { return TableOffscreenImages }

// UserTimings holds the performance.measure() entries of the page.
type UserTimings struct {
	Envelope
	Metrics []UserTiming `bigquery:"metrics" json:"metrics"`
}

type UserTiming struct {
	MetricName      string  `bigquery:"metricName" json:"metricName"`
	MetricStartTime float64 `bigquery:"metricStartTime" json:"metricStartTime"`
	MetricEndTime   float64 `bigquery:"metricEndTime" json:"metricEndTime"`
	MetricDuration  float64 `bigquery:"metricDuration" json:"metricDuration"`
}

func (UserTimings) Table() string { return TableUserTimings }
