package main

import (
	"errors"
	"testing"

	"github.com/clemv/mritrack/internal/database"
	"github.com/clemv/mritrack/internal/history"
)

func TestRemoveScanDeletesBothCollections(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *database.Session) error {
		addScan(t, s, "data/raw_data/scanA.nii")
		addScan(t, s, "data/raw_data/scanB.nii")
		return removeScan(s, "data/raw_data/scanA.nii")
	})
	if err != nil {
		t.Fatalf("removeScan: %v", err)
	}

	err = db.WithSession(false, func(s *database.Session) error {
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			exists, err := s.HasDocument(coll, "data/raw_data/scanA.nii")
			if err != nil {
				return err
			}
			if exists {
				t.Errorf("scanA still present in %s", coll)
			}
			exists, err = s.HasDocument(coll, "data/raw_data/scanB.nii")
			if err != nil {
				return err
			}
			if !exists {
				t.Errorf("scanB missing from %s", coll)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
}

func TestRemoveScanIsNotUndoable(t *testing.T) {
	db := openTestDB(t)
	mgr := history.NewManager()

	err := db.WithSession(true, func(s *database.Session) error {
		addScan(t, s, "data/raw_data/scanA.nii")
		if err := s.SetValue(database.CollectionCurrent, "data/raw_data/scanA.nii", database.TagExpType, "anat"); err != nil {
			return err
		}
		return mgr.Record(s, history.ModifiedValues{Changes: []history.ValueChange{{
			Document: "data/raw_data/scanA.nii",
			Field:    database.TagExpType,
			Type:     database.FieldTypeString,
			Old:      nil,
			New:      "anat",
		}}})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		return removeScan(s, "data/raw_data/scanA.nii")
	})
	if err != nil {
		t.Fatalf("removeScan: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		// Removal left no history entry of its own
		undo, redo, err := mgr.Depths(s)
		if err != nil {
			return err
		}
		if undo != 1 || redo != 0 {
			t.Fatalf("stack depths after removal = %d/%d, want 1/0", undo, redo)
		}

		// Undo pops the earlier edit and does not resurrect the scan
		rec, err := mgr.Undo(s)
		if err != nil {
			return err
		}
		if rec.Kind() != history.KindModifiedValues {
			t.Errorf("undone record kind = %s, want %s", rec.Kind(), history.KindModifiedValues)
		}
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			exists, err := s.HasDocument(coll, "data/raw_data/scanA.nii")
			if err != nil {
				return err
			}
			if exists {
				t.Errorf("undo resurrected the scan in %s", coll)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
}

func TestRemoveScanUnknown(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *database.Session) error {
		return removeScan(s, "data/raw_data/absent.nii")
	})
	if !errors.Is(err, database.ErrUnknownDocument) {
		t.Fatalf("removeScan of unknown scan = %v, want ErrUnknownDocument", err)
	}
}
