package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ImportSummary represents a complete import run summary
type ImportSummary struct {
	GeneratedAt time.Time
	Duration    time.Duration

	// Import statistics
	ScansImported int
	TagsWritten   int
	EntriesTotal  int
	Skipped       int
	Failed        int
	BytesImported int64

	// Per scan type breakdown, e.g. Scan/Bvec/Bval
	ByType map[string]int

	// Details
	TopErrors []ErrorSummary
	Skips     []SkipInfo

	// Metadata
	SourcePath   string
	ProjectPath  string
	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// SkipInfo represents an entry excluded from the import
type SkipInfo struct {
	SrcPath string
	Reason  string
}

// RecordError counts one failed entry
func (r *ImportSummary) RecordError(err error) {
	r.Failed++
	msg := err.Error()
	for i := range r.TopErrors {
		if r.TopErrors[i].Error == msg {
			r.TopErrors[i].Count++
			return
		}
	}
	r.TopErrors = append(r.TopErrors, ErrorSummary{Error: msg, Count: 1})
}

// RecordSkip counts one excluded entry
func (r *ImportSummary) RecordSkip(srcPath, reason string) {
	r.Skipped++
	r.Skips = append(r.Skips, SkipInfo{SrcPath: srcPath, Reason: reason})
}

// RecordScan counts one imported scan
func (r *ImportSummary) RecordScan(scanType string, tagCount int, sizeBytes int64) {
	r.ScansImported++
	r.TagsWritten += tagCount
	r.BytesImported += sizeBytes
	if r.ByType == nil {
		r.ByType = make(map[string]int)
	}
	r.ByType[scanType]++
}

// WriteMarkdownReport writes the import summary as Markdown
func WriteMarkdownReport(report *ImportSummary, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Import Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.SourcePath != "" {
		md.WriteString(fmt.Sprintf("**Source:** `%s`\n\n", report.SourcePath))
	}
	if report.ProjectPath != "" {
		md.WriteString(fmt.Sprintf("**Project:** `%s`\n\n", report.ProjectPath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Entries in Export Log | %d |\n", report.EntriesTotal))
	md.WriteString(fmt.Sprintf("| Scans Imported | %d |\n", report.ScansImported))
	md.WriteString(fmt.Sprintf("| Tag Values Written | %d |\n", report.TagsWritten))
	md.WriteString(fmt.Sprintf("| Data Imported | %s |\n", humanize.Bytes(uint64(report.BytesImported))))
	if report.Skipped > 0 {
		md.WriteString(fmt.Sprintf("| Entries Skipped | %d |\n", report.Skipped))
	}
	if report.Failed > 0 {
		md.WriteString(fmt.Sprintf("| Entries Failed | %d |\n", report.Failed))
	}
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", report.Duration.Round(time.Second)))
	}
	md.WriteString("\n")

	if len(report.ByType) > 0 {
		md.WriteString("## Scan Types\n\n")
		md.WriteString("| Type | Count |\n")
		md.WriteString("|------|-------|\n")
		types := make([]string, 0, len(report.ByType))
		for t := range report.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", t, report.ByType[t]))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		sort.Slice(report.TopErrors, func(i, j int) bool {
			return report.TopErrors[i].Count > report.TopErrors[j].Count
		})
		md.WriteString("## Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	if len(report.Skips) > 0 {
		md.WriteString("## Skipped Entries\n\n")
		md.WriteString("| Path | Reason |\n")
		md.WriteString("|------|--------|\n")
		for _, skip := range report.Skips {
			md.WriteString(fmt.Sprintf("| `%s` | %s |\n", truncatePath(skip.SrcPath, 60), skip.Reason))
		}
		md.WriteString("\n")
	}

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
