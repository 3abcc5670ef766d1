package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
	"github.com/clemv/mritrack/internal/util"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent change",
	Long: `Revert the most recent recorded change: a tag declaration, removal or
clone, or edited tag values. The stacks live in the database, so undo
works across invocations.

Imported scans stay on disk and in the database when an import is
undone; only its place in the history moves.`,
	Args: cobra.NoArgs,
	RunE: runUndo,
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Re-apply the most recently undone change",
	Args:  cobra.NoArgs,
	RunE:  runRedo,
}

func init() {
	rootCmd.AddCommand(undoCmd, redoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var rec history.Record
	err = db.WithSession(true, func(s *database.Session) error {
		rec, err = history.NewManager().Undo(s)
		return err
	})
	if errors.Is(err, history.ErrNothingToUndo) {
		util.InfoLog("Nothing to undo")
		return nil
	}
	if err != nil {
		return err
	}

	util.SuccessLog("Undone: %s", describeRecord(rec))
	return nil
}

func runRedo(cmd *cobra.Command, args []string) error {
	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	var rec history.Record
	err = db.WithSession(true, func(s *database.Session) error {
		rec, err = history.NewManager().Redo(s)
		return err
	})
	if errors.Is(err, history.ErrNothingToRedo) {
		util.InfoLog("Nothing to redo")
		return nil
	}
	if err != nil {
		return err
	}

	util.SuccessLog("Redone: %s", describeRecord(rec))
	return nil
}

func describeRecord(rec history.Record) string {
	switch r := rec.(type) {
	case history.ModifiedValues:
		if len(r.Changes) == 1 {
			c := r.Changes[0]
			return fmt.Sprintf("value of %s on %s", c.Field, c.Document)
		}
		return fmt.Sprintf("%d tag values", len(r.Changes))
	case history.AddTag:
		return fmt.Sprintf("tag %s added", r.Tag.Name)
	case history.RemoveTag:
		return fmt.Sprintf("tag %s removed", r.Tag.Name)
	case history.CloneTag:
		return fmt.Sprintf("tag %s cloned from %s", r.Tag.Name, r.Source)
	case history.AddScans:
		return fmt.Sprintf("import of %d scan(s) (files kept)", len(r.Documents))
	default:
		return rec.Kind()
	}
}
