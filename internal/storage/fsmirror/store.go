// Package fsmirror writes the legacy flat-file settings blob. The blob is a
// single JSON object consumed by the pre-existing settings reader; this
// module only ever writes it.
package fsmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Mirror is a file-backed implementation of storage.Mirror.
type Mirror struct {
	path string
	mu   sync.Mutex
}

// NewMirror creates a mirror writing to the settings blob at path. The
// parent directory is created if missing.
func NewMirror(path string) (*Mirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	return &Mirror{path: path}, nil
}

// Put writes key=value into the blob, preserving unrelated keys a legacy
// writer may have left there.
func (m *Mirror) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := make(map[string]string)
	data, err := os.ReadFile(m.path)
	if err == nil {
		// A blob that fails to parse is replaced wholesale; the mirror is
		// not a source of truth.
		_ = json.Unmarshal(data, &settings)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read settings blob: %w", err)
	}

	settings[key] = value

	data, err = json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings blob: %w", err)
	}

	return nil
}
