package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/util"
)

var removeCmd = &cobra.Command{
	Use:   "remove <document>",
	Short: "Stop tracking a scan",
	Long: `Remove a scan from both metadata collections, tag values included.
The file on disk is untouched; a later import would pick it up again as
a new scan.

Removal is permanent. It leaves no history entry, so 'mrt undo' will
not bring the scan's metadata back.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	doc := args[0]

	_, db, err := openProject()
	if err != nil {
		return err
	}
	defer db.Close()

	err = db.WithSession(true, func(s *database.Session) error {
		return removeScan(s, doc)
	})
	if err != nil {
		return err
	}

	util.SuccessLog("Scan %s removed from the project (file kept)", doc)
	return nil
}

// removeScan deletes a scan from current and initial together. Not
// recorded in the history; the paired documents are gone for good.
func removeScan(s *database.Session, pk string) error {
	exists, err := s.HasDocument(database.CollectionCurrent, pk)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s in %s", database.ErrUnknownDocument, pk, database.CollectionCurrent)
	}

	for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
		if err := s.RemoveDocument(coll, pk); err != nil {
			return err
		}
	}
	return nil
}
