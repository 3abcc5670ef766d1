package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/importer"
	"github.com/clemv/mritrack/internal/report"
	"github.com/clemv/mritrack/internal/util"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import scans from the newest export log",
	Long: `Read the most recent logExport*.json in data/raw_data and ingest every
successfully exported scan: content checksum, file type, sidecar JSON tags
and diffusion companion files. Scans already tracked are skipped, so
re-running after a new conversion batch only picks up the new files.

The whole run is one database transaction and one undo step.`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("report", false, "write a Markdown import report under reports/")
}

func runImport(cmd *cobra.Command, args []string) error {
	writeReport, _ := cmd.Flags().GetBool("report")

	proj, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	events := newEventLogger(proj)
	defer events.Close()
	if events.Path() != "" {
		util.InfoLog("Event log: %s", events.Path())
	}

	imp := importer.New(proj, db, events)
	progress, result := imp.Start()

	var bar *progressbar.ProgressBar
	if !util.IsQuiet() && util.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("scans"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}

	// The worker runs alone; this thread only renders progress until
	// the finished signal arrives.
	for p := range progress {
		if bar == nil {
			continue
		}
		if p.Total > 0 && bar.GetMax() != p.Total {
			bar.ChangeMax(p.Total)
		}
		bar.Set(p.Done)
	}
	if bar != nil {
		bar.Finish()
	}

	r := <-result
	if r.Err != nil {
		return fmt.Errorf("import failed: %w", r.Err)
	}

	// The worker never touches the history stacks; the import becomes
	// undoable here, as a single operation.
	if len(r.Record.Documents) > 0 {
		err = db.WithSession(true, func(s *database.Session) error {
			return history.NewManager().Record(s, r.Record)
		})
		if err != nil {
			return fmt.Errorf("failed to record import in history: %w", err)
		}
	}

	summary := r.Summary
	util.SuccessLog("Import complete in %v", summary.Duration.Round(time.Millisecond))
	util.InfoLog("  Export log: %s", filepath.Base(summary.SourcePath))
	util.InfoLog("  Scans imported: %d (%s)", summary.ScansImported, humanize.Bytes(uint64(summary.BytesImported)))
	util.InfoLog("  Tag values written: %d", summary.TagsWritten)
	if summary.Skipped > 0 {
		util.InfoLog("  Skipped: %d", summary.Skipped)
	}
	if summary.Failed > 0 {
		util.WarnLog("  Failed: %d", summary.Failed)
	}

	if writeReport {
		outputPath := filepath.Join(proj.ReportsPath(),
			fmt.Sprintf("import-%s.md", time.Now().Format("20060102-150405")))
		if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
			return err
		}
		util.InfoLog("Report: %s", outputPath)
	}
	return nil
}
