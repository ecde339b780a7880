/**
 * Result archive management.
 *
 * Completed task outputs are zipped into a flat archive directory and served
 * by name through signed download links. A periodic sweep removes archives
 * older than the retention window.
 */

package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aerovision/detect-worker/internal/errors"
)

// ArchiveStore owns the archive directory.
type ArchiveStore struct {
	dir string
}

// NewArchiveStore creates the archive directory if needed.
func NewArchiveStore(dir string) (*ArchiveStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", dir, err)
	}
	return &ArchiveStore{dir: dir}, nil
}

// Package zips every regular file in srcDir (non-recursive) into
// <taskID>.zip and returns the archive name.
func (a *ArchiveStore) Package(taskID, srcDir string) (string, error) {
	name := taskID + ".zip"
	path := filepath.Join(a.dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", errors.NewStorageFailedError(taskID, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		zw.Close()
		return "", errors.NewStorageFailedError(taskID, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addZipEntry(zw, filepath.Join(srcDir, entry.Name()), entry.Name()); err != nil {
			zw.Close()
			return "", errors.NewStorageFailedError(taskID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", errors.NewStorageFailedError(taskID, err)
	}
	return name, nil
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// Path resolves an archive name to a filesystem path. The name must be a
// plain file name; anything path-like is rejected before touching the disk.
func (a *ArchiveStore) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid archive name %q", name)
	}
	path := filepath.Join(a.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("archive %s not found: %w", name, err)
	}
	return path, nil
}

// Remove deletes an archive by name. Missing archives are not an error.
func (a *ArchiveStore) Remove(name string) error {
	path, err := a.Path(name)
	if err != nil {
		return nil
	}
	return os.Remove(path)
}

// Sweep deletes archives older than maxAge and returns how many were removed.
func (a *ArchiveStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(a.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
