// Package importer bulk-ingests converted scan files and their sidecar
// tag files into the project database, driven by the converter's export
// log. The ingestion runs on a background worker while the caller
// consumes progress milestones; the finished run hands back one
// add_scans history record for the caller to push.
package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// StatusExportOK marks an export log entry eligible for import
const StatusExportOK = "Export ok"

// ExportEntry is one line of the converter's export log
type ExportEntry struct {
	StatusExport string `json:"StatusExport"`
	NameFile     string `json:"NameFile"`
	BvecBval     string `json:"Bvec_bval"`
}

// Exported reports whether the converter finished this entry
func (e ExportEntry) Exported() bool {
	return e.StatusExport == StatusExportOK
}

// HasCompanions reports whether diffusion companion files accompany the
// scan (FSL .bvec/.bval pair or an MRtrix combined file)
func (e ExportEntry) HasCompanions() bool {
	return e.BvecBval == "yes"
}

// LatestExportLog finds the most recently modified logExport*.json in
// the raw data folder. The converter writes one log per run, so the
// newest log describes the files waiting to be imported.
func LatestExportLog(rawDataDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(rawDataDir, "logExport*.json"))
	if err != nil {
		return "", fmt.Errorf("failed to scan for export logs: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no export log found in %s", rawDataDir)
	}

	var newest string
	var newestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().UnixNano() > newestMod {
			newest = m
			newestMod = info.ModTime().UnixNano()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no readable export log in %s", rawDataDir)
	}
	return newest, nil
}

// ReadExportLog parses an export log file
func ReadExportLog(path string) ([]ExportEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export log: %w", err)
	}
	var entries []ExportEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt export log %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
