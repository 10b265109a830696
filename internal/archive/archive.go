// Package archive keeps the raw Lighthouse reports in Cloud Storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// DefaultPrefix is the object prefix used when none is configured.
const DefaultPrefix = "lighthouse"

const uploadTimeout = 2 * time.Minute

// Archiver stores the raw report of an audit and returns its location.
type Archiver interface {
	Archive(ctx context.Context, website string, timestamp int64, report []byte) (string, error)
}

// GCS archives reports to a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string

	// open returns the writer for an object. Closing it finalizes the upload.
	open  func(ctx context.Context, object string) io.WriteCloser
	newID func() string
}

var _ Archiver = (*GCS)(nil)

// NewGCS creates a storage client writing to bucket under prefix.
// It assumes Application Default Credentials unless clientOpts say otherwise.
func NewGCS(ctx context.Context, bucket, prefix string, clientOpts ...option.ClientOption) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCS: bucket is required")
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: creating storage client: %w", err)
	}

	a := &GCS{
		client: client,
		bucket: bucket,
		prefix: prefix,
		newID:  uuid.NewString,
	}
	a.open = func(ctx context.Context, object string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = "application/json"
		return w
	}
	return a, nil
}

// Close closes the storage client.
func (a *GCS) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Archive uploads report and returns its gs:// URI.
func (a *GCS) Archive(ctx context.Context, website string, timestamp int64, report []byte) (string, error) {
	object, err := ObjectName(a.prefix, website, timestamp, a.newID())
	if err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.open(ctx, object)
	if _, err := io.Copy(w, bytes.NewReader(report)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Archive: copy report to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Archive: finalize upload: %w", err)
	}

	return "gs://" + a.bucket + "/" + object, nil
}

// ObjectName returns <prefix>/<host>/<timestamp>-<id>.json for an audited
// website.
func ObjectName(prefix, website string, timestamp int64, id string) (string, error) {
	u, err := url.Parse(website)
	if err != nil {
		return "", fmt.Errorf("ObjectName: parsing %q: %w", website, err)
	}
	host := u.Host
	if host == "" {
		host = "unknown"
	}
	return path.Join(prefix, host, fmt.Sprintf("%d-%s.json", timestamp, id)), nil
}
