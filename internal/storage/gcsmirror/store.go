// Package gcsmirror writes the legacy settings blob as a GCS object, for
// deployments whose legacy consumer reads settings from a bucket.
package gcsmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

const objectName = "settings.json"

// Mirror is a GCS-backed implementation of storage.Mirror.
type Mirror struct {
	client *storage.Client
	bucket string
}

// NewMirror creates a mirror writing to bucketName. It assumes the client
// is authenticated (e.g. via GOOGLE_APPLICATION_CREDENTIALS).
func NewMirror(ctx context.Context, bucketName string) (*Mirror, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &Mirror{client: client, bucket: bucketName}, nil
}

// Put writes key=value into the settings object, preserving unrelated keys.
func (m *Mirror) Put(ctx context.Context, key, value string) error {
	obj := m.client.Bucket(m.bucket).Object(objectName)

	settings := make(map[string]string)
	r, err := obj.NewReader(ctx)
	if err == nil {
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return fmt.Errorf("failed to read settings object: %w", err)
		}
		// An object that fails to parse is replaced wholesale; the mirror
		// is not a source of truth.
		_ = json.Unmarshal(data, &settings)
	} else if !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to open settings object: %w", err)
	}

	settings[key] = value

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write settings object: %w", err)
	}
	return w.Close()
}

// Close releases the GCS client.
func (m *Mirror) Close() error {
	return m.client.Close()
}
