// Package config reads the perfmatters settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/perfmatters/internal/archive"
	"github.com/dvloznov/perfmatters/internal/lighthouse"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/schema"
	"github.com/dvloznov/perfmatters/internal/sink"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultURL is audited when URL is not set.
const DefaultURL = "https://www.google.com"

// Config holds every setting of a run. It is read once at startup.
type Config struct {
	URL         string `mapstructure:"url"`
	BuildID     string `mapstructure:"build_id"`
	BuildSystem string `mapstructure:"build_system"`

	BigQuery   BigQuery   `mapstructure:"bigquery"`
	Lighthouse Lighthouse `mapstructure:"lighthouse"`
	Archive    Archive    `mapstructure:"archive"`
	Log        Log        `mapstructure:"log"`

	AuditTimeout time.Duration `mapstructure:"audit_timeout"`
}

// BigQuery configures the row sink. An empty ProjectID disables it.
type BigQuery struct {
	ProjectID       string `mapstructure:"project_id"`
	Dataset         string `mapstructure:"dataset"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CreateTables    bool   `mapstructure:"create_tables"`
}

type Lighthouse struct {
	Bin      string `mapstructure:"bin"`
	Port     int    `mapstructure:"port"`
	Mobile   bool   `mapstructure:"mobile"`
	LoadPage bool   `mapstructure:"load_page"`
}

// Archive configures raw report archiving. An empty Bucket disables it.
type Archive struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type Log struct {
	Level  string        `mapstructure:"level"`
	Format logger.Format `mapstructure:"format"`
	// Debug forces the debug level when non empty.
	Debug string `mapstructure:"debug"`
}

// env maps configuration keys to the environment variables they are read from.
var env = map[string]string{
	"url":                       "URL",
	"build_id":                  "BUILD_ID",
	"build_system":              "BUILD_SYSTEM",
	"bigquery.project_id":       "BIGQUERY_PROJECT_ID",
	"bigquery.dataset":          "BIGQUERY_DATASET",
	"bigquery.credentials_file": "BIGQUERY_CREDENTIALS_FILE",
	"bigquery.create_tables":    "BIGQUERY_CREATE_TABLES",
	"lighthouse.bin":            "LIGHTHOUSE_BIN",
	"lighthouse.port":           "LIGHTHOUSE_PORT",
	"lighthouse.mobile":         "LIGHTHOUSE_MOBILE",
	"lighthouse.load_page":      "LIGHTHOUSE_LOAD_PAGE",
	"archive.bucket":            "GCS_ARCHIVE_BUCKET",
	"archive.prefix":            "GCS_ARCHIVE_PREFIX",
	"log.level":                 "LOG_LEVEL",
	"log.format":                "LOG_FORMAT",
	"log.debug":                 "DEBUG",
	"audit_timeout":             "AUDIT_TIMEOUT",
}

// SetDefaults registers the default of every key on vip.
func SetDefaults(vip *viper.Viper) {
	vip.SetDefault("url", DefaultURL)
	vip.SetDefault("build_id", schema.DefaultBuildValue)
	vip.SetDefault("build_system", schema.DefaultBuildValue)
	vip.SetDefault("bigquery.dataset", "perfmatters")
	vip.SetDefault("bigquery.credentials_file", sink.DefaultCredentialsFile())
	vip.SetDefault("bigquery.create_tables", false)
	vip.SetDefault("lighthouse.bin", lighthouse.DefaultBinary)
	vip.SetDefault("lighthouse.port", lighthouse.DefaultPort)
	vip.SetDefault("lighthouse.mobile", true)
	vip.SetDefault("lighthouse.load_page", true)
	vip.SetDefault("archive.prefix", archive.DefaultPrefix)
	vip.SetDefault("log.level", "info")
	vip.SetDefault("log.format", string(logger.FormatConsole))
	vip.SetDefault("audit_timeout", 3*time.Minute)
}

// Load binds the environment to vip and decodes it into a Config.
func Load(vip *viper.Viper) (Config, error) {
	SetDefaults(vip)
	vip.AutomaticEnv()
	for key, name := range env {
		if err := vip.BindEnv(key, name); err != nil {
			return Config{}, fmt.Errorf("Load: could not bind environment variable %s: %w", name, err)
		}
	}

	var c Config
	err := vip.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("Load: decoding configuration: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}
	return c, nil
}

// Validate checks the values that cannot be fixed with a default.
func (c Config) Validate() error {
	var errs []error
	if c.AuditTimeout <= 0 {
		errs = append(errs, fmt.Errorf("AUDIT_TIMEOUT must be positive, got %s", c.AuditTimeout))
	}
	if c.Lighthouse.Port <= 0 || c.Lighthouse.Port > 65535 {
		errs = append(errs, fmt.Errorf("LIGHTHOUSE_PORT must be a TCP port, got %d", c.Lighthouse.Port))
	}
	if c.BigQuery.ProjectID != "" && c.BigQuery.Dataset == "" {
		errs = append(errs, errors.New("BIGQUERY_DATASET is required when BIGQUERY_PROJECT_ID is set"))
	}
	switch c.Log.Format {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", logger.FormatConsole, logger.FormatJSON, c.Log.Format))
	}
	return errors.Join(errs...)
}

// Build returns the build identifiers stamped on every row.
func (c Config) Build() schema.Build {
	return schema.Build{ID: c.BuildID, System: c.BuildSystem}
}

// LighthouseOptions returns the options passed to every audit.
func (c Config) LighthouseOptions() lighthouse.Options {
	return lighthouse.Options{
		LoadPage: c.Lighthouse.LoadPage,
		Mobile:   c.Lighthouse.Mobile,
		Port:     c.Lighthouse.Port,
	}
}

// LoggerOptions returns the logger settings. DEBUG overrides LOG_LEVEL.
func (c Config) LoggerOptions() logger.Options {
	level := c.Log.Level
	if c.Log.Debug != "" {
		level = "debug"
	}
	return logger.Options{Level: level, Format: c.Log.Format}
}

// SinkEnabled reports whether rows are written to BigQuery.
func (c Config) SinkEnabled() bool {
	return c.BigQuery.ProjectID != ""
}

// ArchiveEnabled reports whether raw reports are archived.
func (c Config) ArchiveEnabled() bool {
	return c.Archive.Bucket != ""
}
