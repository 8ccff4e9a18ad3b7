// Package models maps catalog entries to deterministic install locations
// inside the application-private directory.
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sona-transcriber/internal/domain"
)

const archiveSuffix = ".tar.bz2"

// Resolver computes on-disk locations for catalog artifacts.
type Resolver struct {
	modelsDir string
}

// NewResolver creates a resolver rooted at the given application directory.
func NewResolver(appDir string) *Resolver {
	return &Resolver{modelsDir: filepath.Join(appDir, "models")}
}

// ModelsDir returns the directory all artifacts install under.
func (r *Resolver) ModelsDir() string {
	return r.modelsDir
}

// EnsureModelsDir creates the models directory when missing.
func (r *Resolver) EnsureModelsDir() error {
	if err := os.MkdirAll(r.modelsDir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}
	return nil
}

// TargetPath returns where an entry lives once installed: the extracted
// directory for archives, the file itself for single-file artifacts.
func (r *Resolver) TargetPath(entry domain.CatalogEntry) string {
	if entry.IsArchive() {
		return filepath.Join(r.modelsDir, strings.TrimSuffix(entry.ArchiveFileName, archiveSuffix))
	}
	return filepath.Join(r.modelsDir, entry.InstallFileName)
}

// ArchivePath returns the temporary download location for an archive entry.
func (r *Resolver) ArchivePath(entry domain.CatalogEntry) string {
	return filepath.Join(r.modelsDir, entry.ArchiveFileName)
}

// InstalledPath reports the resolved path when the entry is installed.
func (r *Resolver) InstalledPath(entry domain.CatalogEntry) (string, bool) {
	target := r.TargetPath(entry)
	info, err := os.Stat(target)
	if err != nil {
		return "", false
	}
	if entry.IsArchive() != info.IsDir() {
		return "", false
	}
	return target, true
}

// IsInstalled reports whether the entry's target already exists on disk.
func (r *Resolver) IsInstalled(entry domain.CatalogEntry) bool {
	_, ok := r.InstalledPath(entry)
	return ok
}
