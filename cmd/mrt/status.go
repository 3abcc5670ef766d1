package main

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the project database",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	proj, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		scans, bricks        int
		builtin, user        int
		shown                []string
		undoDepth, redoDepth int
	)

	err = db.WithSession(false, func(s *database.Session) error {
		scans, err = s.CountDocuments(database.CollectionCurrent)
		if err != nil {
			return err
		}
		bricks, err = s.CountDocuments(database.CollectionBrick)
		if err != nil {
			return err
		}

		fields, err := s.Fields(database.CollectionCurrent)
		if err != nil {
			return err
		}
		for _, f := range fields {
			if f.Origin == database.OriginBuiltin {
				builtin++
			} else {
				user++
			}
		}

		shown, err = s.ShownTags()
		if err != nil {
			return err
		}

		undoDepth, redoDepth, err = history.NewManager().Depths(s)
		return err
	})
	if err != nil {
		return err
	}

	size := "unknown"
	if info, err := os.Stat(proj.DatabasePath()); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}

	util.InfoLog("Project: %s", proj.Folder)
	util.InfoLog("Database: %s (%s, SQLite %s)", proj.DatabasePath(), size, database.SQLiteVersion())
	util.InfoLog("Tracked scans: %d", scans)
	util.InfoLog("Processing records: %d", bricks)
	util.InfoLog("Tags: %d builtin, %d user (%d shown)", builtin, user, len(shown))
	util.InfoLog("History: %d to undo, %d to redo", undoDepth, redoDepth)
	return nil
}
