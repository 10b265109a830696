package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/perfmatters/internal/logger"
	"github.com/dvloznov/perfmatters/internal/schema"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CredentialsFileName is looked up next to the executable when no
// credentials file is configured.
const CredentialsFileName = "client_secret.json"

// DefaultCredentialsFile returns the path of CredentialsFileName beside the
// running executable.
func DefaultCredentialsFile() string {
	exe, err := os.Executable()
	if err != nil {
		return CredentialsFileName
	}
	return filepath.Join(filepath.Dir(exe), CredentialsFileName)
}

// BigQueryOptions selects the dataset rows are written to.
type BigQueryOptions struct {
	ProjectID string
	Dataset   string
	// CredentialsFile is used when it exists. Otherwise application default
	// credentials apply.
	CredentialsFile string
}

// BigQueryInserter writes rows with the streaming insert API. It holds a
// shared client and is safe for concurrent use.
type BigQueryInserter struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	schemas map[string]bigquery.Schema
}

var _ Inserter = (*BigQueryInserter)(nil)

// NewBigQueryInserter creates a BigQuery client for opts. Extra client
// options are appended after the credentials option.
func NewBigQueryInserter(ctx context.Context, opts BigQueryOptions, clientOpts ...option.ClientOption) (*BigQueryInserter, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("NewBigQueryInserter: project id is required")
	}
	if opts.Dataset == "" {
		return nil, errors.New("NewBigQueryInserter: dataset is required")
	}

	var co []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err == nil {
			co = append(co, option.WithCredentialsFile(opts.CredentialsFile))
		} else {
			log := logger.FromContext(ctx)
			log.Debug().
				Str("credentials_file", opts.CredentialsFile).
				Msg("Credentials file not found, using application default credentials")
		}
	}
	co = append(co, clientOpts...)

	client, err := bigquery.NewClient(ctx, opts.ProjectID, co...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryInserter: creating client: %w", err)
	}
	return NewBigQueryInserterWithClient(client, opts.Dataset)
}

// NewBigQueryInserterWithClient wraps an existing client.
func NewBigQueryInserterWithClient(client *bigquery.Client, dataset string) (*BigQueryInserter, error) {
	schemas, err := schema.Schemas()
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryInserterWithClient: %w", err)
	}
	return &BigQueryInserter{
		client:  client,
		dataset: client.Dataset(dataset),
		schemas: schemas,
	}, nil
}

// Close closes the BigQuery client connection.
func (b *BigQueryInserter) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// Insert streams row into table. Each call uses a fresh insert id.
func (b *BigQueryInserter) Insert(ctx context.Context, table string, row schema.Record) (err error) {
	defer decorate.OnError(&err, "could not insert row into %s", table)

	s, ok := b.schemas[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}

	saver := &bigquery.StructSaver{
		Struct:   row,
		Schema:   s,
		InsertID: uuid.NewString(),
	}
	return b.dataset.Table(table).Inserter().Put(ctx, saver)
}

// EnsureTables creates the tables missing from the dataset. Existing tables
// are left untouched.
func (b *BigQueryInserter) EnsureTables(ctx context.Context) (err error) {
	defer decorate.OnError(&err, "could not ensure tables in dataset %s", b.dataset.DatasetID)

	log := logger.FromContext(ctx)
	for _, name := range schema.Tables() {
		t := b.dataset.Table(name)

		_, err := t.Metadata(ctx)
		if err == nil {
			log.Debug().Str("table", name).Msg("Table exists")
			continue
		}
		if !hasStatus(err, http.StatusNotFound) {
			return fmt.Errorf("reading metadata of %s: %w", name, err)
		}

		err = t.Create(ctx, &bigquery.TableMetadata{Schema: b.schemas[name]})
		if err != nil && !hasStatus(err, http.StatusConflict) {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		log.Info().Str("table", name).Msg("Created table")
	}
	return nil
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
