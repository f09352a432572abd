package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/pixtracker/internal/store"
)

// ObjectStore is the slice of a GCS bucket the KV and backups need.
type ObjectStore interface {
	Read(ctx context.Context, object string) ([]byte, error)
	Write(ctx context.Context, object, contentType string, data []byte) error
	Delete(ctx context.Context, object string) error
}

// Bucket implements ObjectStore on a real GCS bucket.
// It assumes Application Default Credentials are configured.
type Bucket struct {
	client *storage.Client
	name   string
}

// NewBucket creates a storage client bound to bucket name.
func NewBucket(ctx context.Context, name string) (*Bucket, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewBucket: create storage client: %w", err)
	}
	return &Bucket{client: client, name: name}, nil
}

// Close closes the storage client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

func (b *Bucket) Read(ctx context.Context, object string) ([]byte, error) {
	rc, err := b.client.Bucket(b.name).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Read: open gs://%s/%s: %w", b.name, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: reading bytes: %w", err)
	}
	return data, nil
}

func (b *Bucket) Write(ctx context.Context, object, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: copy to gs://%s/%s: %w", b.name, object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalize gs://%s/%s: %w", b.name, object, err)
	}
	return nil
}

func (b *Bucket) Delete(ctx context.Context, object string) error {
	err := b.client.Bucket(b.name).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: gs://%s/%s: %w", b.name, object, err)
	}
	return nil
}

// KV maps each key to one JSON object under prefix.
type KV struct {
	objects ObjectStore
	prefix  string
}

// NewKV creates a KV over objects.
func NewKV(objects ObjectStore, prefix string) *KV {
	return &KV{objects: objects, prefix: strings.Trim(prefix, "/")}
}

func (k *KV) object(key string) string {
	return path.Join(k.prefix, key+".json")
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	data, err := k.objects.Read(ctx, k.object(key))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	return k.objects.Write(ctx, k.object(key), "application/json", []byte(value))
}

func (k *KV) Delete(ctx context.Context, key string) error {
	return k.objects.Delete(ctx, k.object(key))
}

var _ store.KV = (*KV)(nil)
var _ ObjectStore = (*Bucket)(nil)
