package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotReady is returned when no complete version has been published.
var ErrNotReady = errors.New("no published version")

// ResolveVersion reads the manifest below root and returns the directory of
// the current version. A missing or unreadable manifest, an empty hash, or a
// hash without a version directory all yield ErrNotReady.
func ResolveVersion(root string) (tag, dir string, err error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrNotReady
		}
		return "", "", fmt.Errorf("%w: %v", ErrNotReady, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", "", fmt.Errorf("%w: invalid manifest: %v", ErrNotReady, err)
	}
	if !validSegment(m.Hash) {
		return "", "", fmt.Errorf("%w: invalid hash %q", ErrNotReady, m.Hash)
	}

	dir = filepath.Join(root, m.Hash)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%w: version %s is missing", ErrNotReady, m.Hash)
	}
	return m.Hash, dir, nil
}

// LoadMeta reads meta.json from a version directory.
func LoadMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode meta: %w", err)
	}
	return &m, nil
}
