package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Standard project subfolders. Document primary keys are paths relative
// to the project root, always with forward slashes.
const (
	DataDir           = "data"
	RawDataDir        = "data/raw_data"
	DerivedDataDir    = "data/derived_data"
	DownloadedDataDir = "data/downloaded_data"
	ReportsDir        = "reports"

	DatabaseFileName = "project.db"
)

// Project describes a tracked dataset folder: where the scans live and
// where the metadata database sits. It is built once by the CLI from
// configuration and passed explicitly into every component that needs it.
type Project struct {
	Folder string
}

// New creates a Project rooted at the given folder
func New(folder string) *Project {
	return &Project{Folder: filepath.Clean(folder)}
}

// DatabasePath returns the path of the project's metadata database file
func (p *Project) DatabasePath() string {
	return filepath.Join(p.Folder, DatabaseFileName)
}

// RawDataPath returns the absolute path of the raw data folder
func (p *Project) RawDataPath() string {
	return filepath.Join(p.Folder, filepath.FromSlash(RawDataDir))
}

// DerivedDataPath returns the absolute path of the derived data folder
func (p *Project) DerivedDataPath() string {
	return filepath.Join(p.Folder, filepath.FromSlash(DerivedDataDir))
}

// DownloadedDataPath returns the absolute path of the downloaded data folder
func (p *Project) DownloadedDataPath() string {
	return filepath.Join(p.Folder, filepath.FromSlash(DownloadedDataDir))
}

// ReportsPath returns the absolute path of the reports folder, where
// import event logs and summaries are written
func (p *Project) ReportsPath() string {
	return filepath.Join(p.Folder, ReportsDir)
}

// EnsureLayout creates the project folder skeleton if it does not exist
func (p *Project) EnsureLayout() error {
	dirs := []string{
		p.Folder,
		p.RawDataPath(),
		p.DerivedDataPath(),
		p.DownloadedDataPath(),
		p.ReportsPath(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the project folder holds a database file
func (p *Project) Exists() bool {
	_, err := os.Stat(p.DatabasePath())
	return err == nil
}

// Key converts an absolute path inside the project into a document
// primary key (a forward-slash relative path).
func (p *Project) Key(abs string) (string, error) {
	rel, err := filepath.Rel(p.Folder, abs)
	if err != nil {
		return "", fmt.Errorf("path %s is outside project %s: %w", abs, p.Folder, err)
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") || rel == ".." {
		return "", fmt.Errorf("path %s is outside project %s", abs, p.Folder)
	}
	return rel, nil
}

// AbsolutePath converts a document primary key back into an absolute path
func (p *Project) AbsolutePath(key string) string {
	return filepath.Join(p.Folder, filepath.FromSlash(key))
}
