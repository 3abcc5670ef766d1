package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestImportSummary_Records(t *testing.T) {
	r := &ImportSummary{}

	r.RecordScan("Scan", 10, 1024)
	r.RecordScan("Scan", 8, 2048)
	r.RecordScan("Bvec", 2, 128)
	r.RecordSkip("/export/bad.nii", "no export status")
	r.RecordError(errors.New("checksum failed"))
	r.RecordError(errors.New("checksum failed"))

	if r.ScansImported != 3 {
		t.Errorf("Expected 3 scans, got %d", r.ScansImported)
	}
	if r.TagsWritten != 20 {
		t.Errorf("Expected 20 tags, got %d", r.TagsWritten)
	}
	if r.BytesImported != 3200 {
		t.Errorf("Expected 3200 bytes, got %d", r.BytesImported)
	}
	if r.ByType["Scan"] != 2 || r.ByType["Bvec"] != 1 {
		t.Errorf("Unexpected type breakdown %v", r.ByType)
	}
	if r.Skipped != 1 || len(r.Skips) != 1 {
		t.Errorf("Expected 1 skip, got %d", r.Skipped)
	}
	if r.Failed != 2 {
		t.Errorf("Expected 2 failures, got %d", r.Failed)
	}
	if len(r.TopErrors) != 1 || r.TopErrors[0].Count != 2 {
		t.Errorf("Expected one aggregated error with count 2, got %v", r.TopErrors)
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	tmpDir := t.TempDir()
	outputPath := filepath.Join(tmpDir, "reports", "import.md")

	report := &ImportSummary{
		GeneratedAt:  time.Now(),
		Duration:     3 * time.Second,
		EntriesTotal: 5,
		SourcePath:   "/export",
		ProjectPath:  "/projects/study1",
		EventLogPath: "/projects/study1/reports/events.jsonl",
	}
	report.RecordScan("Scan", 12, 4096)
	report.RecordScan("Bval", 1, 64)
	report.RecordSkip("/export/extra.txt", "no export status")
	report.RecordError(errors.New("sidecar unreadable"))

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	for _, want := range []string{
		"# Import Report",
		"| Scans Imported | 2 |",
		"| Tag Values Written | 13 |",
		"| Entries Skipped | 1 |",
		"| Entries Failed | 1 |",
		"## Scan Types",
		"| Bval | 1 |",
		"sidecar unreadable",
		"no export status",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Report missing %q", want)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	short := "/a/b.nii"
	if got := truncatePath(short, 40); got != short {
		t.Errorf("Short path changed: %s", got)
	}

	long := strings.Repeat("/very-long-segment", 10) + "/scan.nii"
	got := truncatePath(long, 40)
	if len(got) > 43 {
		t.Errorf("Truncated path too long: %d chars", len(got))
	}
	if !strings.Contains(got, "...") {
		t.Errorf("Truncated path missing ellipsis: %s", got)
	}
	if !strings.HasSuffix(got, "scan.nii") {
		t.Errorf("Truncated path lost its tail: %s", got)
	}
}
