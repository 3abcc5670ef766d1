package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/importer"
	"github.com/clemv/mritrack/internal/project"
	"github.com/clemv/mritrack/internal/util"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import automatically when a new export log appears",
	Long: `Watch data/raw_data and run an import whenever a converter drops a new
logExport*.json there. Each detected log triggers one import run, so a
project can track a conversion pipeline as it produces batches.

Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("settle", 2*time.Second, "delay after the last write before importing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	settle, _ := cmd.Flags().GetDuration("settle")

	proj, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(proj.RawDataPath()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", proj.RawDataPath(), err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	util.InfoLog("Watching %s for export logs", proj.RawDataPath())

	// Converters write the log incrementally; the timer only fires once
	// writes have settled.
	var pending *time.Timer
	pendingC := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isExportLog(event.Name) {
				continue
			}
			if pending == nil {
				pending = time.AfterFunc(settle, func() {
					select {
					case pendingC <- struct{}{}:
					default:
					}
				})
			} else {
				pending.Reset(settle)
			}

		case <-pendingC:
			pending = nil
			if err := watchImport(proj, db); err != nil {
				util.ErrorLog("Import failed: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case <-stop:
			util.InfoLog("Stopping")
			return nil
		}
	}
}

func isExportLog(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "logExport") && strings.HasSuffix(base, ".json")
}

func watchImport(proj *project.Project, db *database.Database) error {
	events := newEventLogger(proj)
	defer events.Close()

	imp := importer.New(proj, db, events)
	record, summary, err := imp.Run()
	if err != nil {
		return err
	}

	if len(record.Documents) > 0 {
		err := db.WithSession(true, func(s *database.Session) error {
			return history.NewManager().Record(s, record)
		})
		if err != nil {
			return err
		}
	}

	util.SuccessLog("Imported %d scan(s) from %s",
		summary.ScansImported, filepath.Base(summary.SourcePath))
	return nil
}
