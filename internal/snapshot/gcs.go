package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS writes snapshots to a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects to GCS using ambient credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("snapshot bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Put uploads data and returns its gs:// URI.
func (g *GCS) Put(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	object := strings.TrimPrefix(path, "/")
	if g.prefix != "" {
		object = g.prefix + "/" + object
	}

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write snapshot object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize snapshot object: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
