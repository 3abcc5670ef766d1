package history

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/clemv/mritrack/internal/database"
)

func openTestDB(t *testing.T, path string) *database.Database {
	t.Helper()
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addScan(t *testing.T, db *database.Database, pk string) {
	t.Helper()
	err := db.WithSession(true, func(s *database.Session) error {
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			if err := s.AddDocument(coll, pk); err != nil {
				return err
			}
			if err := s.SetValue(coll, pk, database.TagFilename, pk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to add scan %s: %v", pk, err)
	}
}

func currentValue(t *testing.T, db *database.Database, pk, field string) any {
	t.Helper()
	var v any
	err := db.WithSession(false, func(s *database.Session) error {
		var err error
		v, err = s.GetValue(database.CollectionCurrent, pk, field)
		return err
	})
	if err != nil {
		t.Fatalf("failed to read %s.%s: %v", pk, field, err)
	}
	return v
}

func TestModifiedValuesUndoRedo(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")

	err := db.WithSession(true, func(s *database.Session) error {
		if err := s.AddField(database.Field{
			Collection: database.CollectionCurrent, Name: "Grade", Type: database.FieldTypeString}); err != nil {
			return err
		}
		if err := s.SetValue(database.CollectionCurrent, "scan1.nii", "Grade", "B"); err != nil {
			return err
		}
		return m.Record(s, ModifiedValues{Changes: []ValueChange{
			{Document: "scan1.nii", Field: "Grade", Type: database.FieldTypeString, Old: nil, New: "B"},
		}})
	})
	if err != nil {
		t.Fatalf("failed to record edit: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Undo(s)
		return err
	})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	if v := currentValue(t, db, "scan1.nii", "Grade"); v != database.NotDefined {
		t.Errorf("expected Grade unset after undo, got %v", v)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Redo(s)
		return err
	})
	if err != nil {
		t.Fatalf("redo failed: %v", err)
	}
	if v := currentValue(t, db, "scan1.nii", "Grade"); v != "B" {
		t.Errorf("expected Grade B after redo, got %v", v)
	}
}

func TestEmptyStacks(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()

	err := db.WithSession(true, func(s *database.Session) error {
		_, err := m.Undo(s)
		return err
	})
	if !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Redo(s)
		return err
	})
	if !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestRecordClearsRedo(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")

	rec := AddTag{Tag: TagDecl{Name: "Grade", Type: database.FieldTypeString, Visibility: true}}
	err := db.WithSession(true, func(s *database.Session) error {
		if err := rec.Tag.declare(s); err != nil {
			return err
		}
		if err := m.Record(s, rec); err != nil {
			return err
		}
		if _, err := m.Undo(s); err != nil {
			return err
		}
		// A new operation invalidates the undone one
		other := AddTag{Tag: TagDecl{Name: "Score", Type: database.FieldTypeInteger}}
		if err := other.Tag.declare(s); err != nil {
			return err
		}
		return m.Record(s, other)
	})
	if err != nil {
		t.Fatalf("failed to build stacks: %v", err)
	}

	err = db.WithSession(false, func(s *database.Session) error {
		undo, redo, err := m.Depths(s)
		if err != nil {
			return err
		}
		if undo != 1 || redo != 0 {
			t.Errorf("expected stacks 1/0, got %d/%d", undo, redo)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read depths: %v", err)
	}
}

func TestAddTagUndoRedo(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()

	rec := AddTag{Tag: TagDecl{Name: "Grade", Type: database.FieldTypeString, Visibility: true}}
	err := db.WithSession(true, func(s *database.Session) error {
		if err := rec.Tag.declare(s); err != nil {
			return err
		}
		return m.Record(s, rec)
	})
	if err != nil {
		t.Fatalf("failed to add tag: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		if _, err := m.Undo(s); err != nil {
			return err
		}
		for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
			exists, err := s.HasField(coll, "Grade")
			if err != nil {
				return err
			}
			if exists {
				t.Errorf("Grade still declared in %s after undo", coll)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		if _, err := m.Redo(s); err != nil {
			return err
		}
		exists, err := s.HasField(database.CollectionCurrent, "Grade")
		if err != nil {
			return err
		}
		if !exists {
			t.Error("Grade missing after redo")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("redo failed: %v", err)
	}
}

func TestRemoveTagRestoresValues(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")

	decl := TagDecl{Name: "BandWidth", Type: database.FieldTypeListFloat, Visibility: true}
	err := db.WithSession(true, func(s *database.Session) error {
		if err := decl.declare(s); err != nil {
			return err
		}
		if err := s.SetValue(database.CollectionCurrent, "scan1.nii", "BandWidth", []float64{50000}); err != nil {
			return err
		}
		// Remove the tag, capturing its values the way the CLI does
		rec := RemoveTag{Tag: decl, Values: []TagValue{
			{Document: "scan1.nii", Current: []any{50000.0}, Initial: nil},
		}}
		if err := decl.retract(s); err != nil {
			return err
		}
		return m.Record(s, rec)
	})
	if err != nil {
		t.Fatalf("failed to remove tag: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Undo(s)
		return err
	})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}

	v := currentValue(t, db, "scan1.nii", "BandWidth")
	if !database.ValuesEqual(database.FieldTypeListFloat, v, []any{50000.0}) {
		t.Errorf("expected restored BandWidth [50000], got %v", v)
	}
}

func TestCloneTagUndoRedo(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")
	addScan(t, db, "scan2.nii")

	source := TagDecl{Name: "Grade", Type: database.FieldTypeString, Visibility: true}
	clone := CloneTag{
		Tag:    TagDecl{Name: "Grade (copy)", Type: database.FieldTypeString, Visibility: true},
		Source: "Grade",
		Values: []TagValue{
			{Document: "scan1.nii", Current: "A", Initial: nil},
			{Document: "scan2.nii", Current: "C", Initial: nil},
		},
	}

	err := db.WithSession(true, func(s *database.Session) error {
		if err := source.declare(s); err != nil {
			return err
		}
		if err := s.SetValue(database.CollectionCurrent, "scan1.nii", "Grade", "A"); err != nil {
			return err
		}
		if err := s.SetValue(database.CollectionCurrent, "scan2.nii", "Grade", "C"); err != nil {
			return err
		}
		if err := clone.redo(s); err != nil {
			return err
		}
		return m.Record(s, clone)
	})
	if err != nil {
		t.Fatalf("failed to clone tag: %v", err)
	}

	if v := currentValue(t, db, "scan1.nii", "Grade (copy)"); v != "A" {
		t.Fatalf("expected cloned value A, got %v", v)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Undo(s)
		return err
	})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	err = db.WithSession(false, func(s *database.Session) error {
		exists, err := s.HasField(database.CollectionCurrent, "Grade (copy)")
		if err != nil {
			return err
		}
		if exists {
			t.Error("cloned tag still declared after undo")
		}
		// The source is untouched
		v, err := s.GetValue(database.CollectionCurrent, "scan1.nii", "Grade")
		if err != nil {
			return err
		}
		if v != "A" {
			t.Errorf("source tag drifted to %v", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to inspect after undo: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Redo(s)
		return err
	})
	if err != nil {
		t.Fatalf("redo failed: %v", err)
	}
	if v := currentValue(t, db, "scan2.nii", "Grade (copy)"); v != "C" {
		t.Errorf("expected restored clone value C, got %v", v)
	}
}

func TestUndoImportKeepsScans(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")

	err := db.WithSession(true, func(s *database.Session) error {
		return m.Record(s, AddScans{Documents: []string{"scan1.nii"}})
	})
	if err != nil {
		t.Fatalf("failed to record import: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		r, err := m.Undo(s)
		if err != nil {
			return err
		}
		if r.Kind() != KindAddScans {
			t.Errorf("unexpected record kind %s", r.Kind())
		}
		exists, err := s.HasDocument(database.CollectionCurrent, "scan1.nii")
		if err != nil {
			return err
		}
		if !exists {
			t.Error("imported scan removed by undo")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("undo failed: %v", err)
	}
}

func TestStacksSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.db")

	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	m := NewManager()
	err = db.WithSession(true, func(s *database.Session) error {
		if err := s.AddField(database.Field{
			Collection: database.CollectionCurrent, Name: "Grade", Type: database.FieldTypeString}); err != nil {
			return err
		}
		if err := s.AddDocument(database.CollectionCurrent, "scan1.nii"); err != nil {
			return err
		}
		if err := s.SetValue(database.CollectionCurrent, "scan1.nii", "Grade", "B"); err != nil {
			return err
		}
		return m.Record(s, ModifiedValues{Changes: []ValueChange{
			{Document: "scan1.nii", Field: "Grade", Type: database.FieldTypeString, Old: nil, New: "B"},
		}})
	})
	if err != nil {
		t.Fatalf("failed to record edit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	// A fresh process sees the same stack
	db2 := openTestDB(t, path)
	m2 := NewManager()
	err = db2.WithSession(true, func(s *database.Session) error {
		_, err := m2.Undo(s)
		return err
	})
	if err != nil {
		t.Fatalf("undo after reopen failed: %v", err)
	}
	if v := currentValue(t, db2, "scan1.nii", "Grade"); v != database.NotDefined {
		t.Errorf("expected Grade unset after reopened undo, got %v", v)
	}
}

func TestUndoSkipsRemovedScan(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "project.db"))
	m := NewManager()
	addScan(t, db, "scan1.nii")
	addScan(t, db, "scan2.nii")

	err := db.WithSession(true, func(s *database.Session) error {
		if err := s.AddField(database.Field{
			Collection: database.CollectionCurrent, Name: "Grade", Type: database.FieldTypeString}); err != nil {
			return err
		}
		for _, pk := range []string{"scan1.nii", "scan2.nii"} {
			if err := s.SetValue(database.CollectionCurrent, pk, "Grade", "B"); err != nil {
				return err
			}
		}
		if err := m.Record(s, ModifiedValues{Changes: []ValueChange{
			{Document: "scan1.nii", Field: "Grade", Type: database.FieldTypeString, Old: "A", New: "B"},
			{Document: "scan2.nii", Field: "Grade", Type: database.FieldTypeString, Old: "A", New: "B"},
		}}); err != nil {
			return err
		}
		// scan1 disappears before the undo
		return s.RemoveDocument(database.CollectionCurrent, "scan1.nii")
	})
	if err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}

	err = db.WithSession(true, func(s *database.Session) error {
		_, err := m.Undo(s)
		return err
	})
	if err != nil {
		t.Fatalf("undo over a removed scan failed: %v", err)
	}
	if v := currentValue(t, db, "scan2.nii", "Grade"); v != "A" {
		t.Errorf("expected surviving scan restored to A, got %v", v)
	}
}
