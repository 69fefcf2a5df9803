package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// compile-time interface check
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements Storage on local disk. Published objects are
// written under objectDir keyed by their storage key, and locators that are
// not absolute paths or http(s) URLs are resolved against the same directory.
type LocalStorage struct {
	tempDir    string
	objectDir  string
	httpClient *http.Client
}

// NewLocalStorage creates a new LocalStorage instance.
// Workspaces are created under tempDir (os.TempDir()/shortsgen when empty);
// objects are kept in tempDir/objects.
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "shortsgen")
	}

	objectDir := filepath.Join(tempDir, "objects")
	if err := os.MkdirAll(objectDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directories: %w", err)
	}

	return &LocalStorage{
		tempDir:    tempDir,
		objectDir:  objectDir,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// NewWorkspace creates a uniquely named directory under the temp dir.
func (s *LocalStorage) NewWorkspace(name string) (*Workspace, error) {
	dir, err := os.MkdirTemp(s.tempDir, "job_"+sanitize(name)+"_*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: dir}, nil
}

// Fetch copies a local file, an http(s) URL or a previously published key into dst.
func (s *LocalStorage) Fetch(ctx context.Context, locator, dst string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	locator = strings.TrimSpace(locator)
	if locator == "" {
		return ErrEmptyLocator
	}

	if isHTTP(locator) {
		return s.fetchHTTP(ctx, locator, dst)
	}

	src := strings.TrimPrefix(locator, "file://")
	if !filepath.IsAbs(src) {
		src = filepath.Join(s.objectDir, filepath.FromSlash(strings.TrimPrefix(src, "/")))
	}

	f, err := os.Open(src) // #nosec G304 - locator is resolved by the job owner
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, locator)
		}
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	return writeFile(dst, f)
}

// Publish copies src into the object directory under key and returns key.
func (s *LocalStorage) Publish(ctx context.Context, key, src, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(src) // #nosec G304 - src is a workspace file
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	dst := filepath.Join(s.objectDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	if err := writeFile(dst, f); err != nil {
		return "", err
	}
	return key, nil
}

func (s *LocalStorage) fetchHTTP(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	return writeFile(dst, resp.Body)
}

// writeFile streams r into path, removing the partial file on failure.
func writeFile(path string, r io.Reader) error {
	out, err := os.Create(path) // #nosec G304 - path is a workspace file
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func isHTTP(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
