// Package storage moves media between object storage and local disk.
// It defines the Storage interface (port) used by the acquire and publish
// stages, and implementations for local disk and S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Static errors for storage operations.
var (
	// ErrEmptyLocator is returned when a fetch is attempted without a locator.
	ErrEmptyLocator = errors.New("storage: empty locator")
	// ErrObjectNotFound is returned when the source object does not exist.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// Storage is the object storage port.
type Storage interface {
	// Fetch copies the object identified by locator into the local file dst.
	Fetch(ctx context.Context, locator, dst string) error

	// Publish uploads the local file src under key and returns the locator
	// that identifies the stored object.
	Publish(ctx context.Context, key, src, contentType string) (locator string, err error)

	// NewWorkspace creates an empty scratch directory for one job run.
	NewWorkspace(name string) (*Workspace, error)
}

// Workspace is a scratch directory scoped to one job run. Close removes it
// together with everything written beneath it.
type Workspace struct {
	root string
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.root
}

// ItemDir returns an empty directory for the item at index, removing
// whatever a previous use left behind.
func (w *Workspace) ItemDir(index int) (string, error) {
	dir := filepath.Join(w.root, "item_"+strconv.Itoa(index))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("reset item directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create item directory: %w", err)
	}
	return dir, nil
}

// Close removes the workspace. It is safe to call more than once.
func (w *Workspace) Close() error {
	if w.root == "" {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.root, err)
	}
	return nil
}
