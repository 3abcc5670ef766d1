package database

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "project.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenSeedsBuiltins(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(false, func(s *Session) error {
		for _, coll := range []string{CollectionCurrent, CollectionInitial, CollectionBrick, CollectionHistory} {
			exists, err := s.HasCollection(coll)
			if err != nil {
				return err
			}
			if !exists {
				t.Errorf("expected collection %s to exist", coll)
			}
		}

		for _, coll := range []string{CollectionCurrent, CollectionInitial} {
			for _, tag := range []string{TagFilename, TagChecksum, TagType, TagExpType, TagBricks, TagHistory} {
				f, err := s.GetFieldAttributes(coll, tag)
				if err != nil {
					return fmt.Errorf("missing builtin tag %s in %s: %w", tag, coll, err)
				}
				if f.Origin != OriginBuiltin {
					t.Errorf("expected %s to be builtin, got %s", tag, f.Origin)
				}
			}
		}

		// Checksum is tracked but hidden from the browser
		f, err := s.GetFieldAttributes(CollectionCurrent, TagChecksum)
		if err != nil {
			return err
		}
		if f.Visibility {
			t.Error("expected Checksum to be hidden")
		}

		shown, err := s.ShownTags()
		if err != nil {
			return err
		}
		visible := make(map[string]bool)
		for _, n := range shown {
			visible[n] = true
		}
		if !visible[TagFilename] || !visible[TagType] {
			t.Errorf("expected FileName and Type to be shown, got %v", shown)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	db.Close()

	// Re-opening must not duplicate or reset the builtin schema
	db, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestSessionCommitAndRollback(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		return s.AddDocument(CollectionCurrent, "data/raw_data/a.nii")
	})
	if err != nil {
		t.Fatalf("write session failed: %v", err)
	}

	boom := errors.New("boom")
	err = db.WithSession(true, func(s *Session) error {
		if err := s.AddDocument(CollectionCurrent, "data/raw_data/b.nii"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	// a.nii committed, b.nii rolled back
	err = db.WithSession(false, func(s *Session) error {
		for key, want := range map[string]bool{
			"data/raw_data/a.nii": true,
			"data/raw_data/b.nii": false,
		} {
			got, err := s.HasDocument(CollectionCurrent, key)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("HasDocument(%s) = %v, want %v", key, got, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read session failed: %v", err)
	}
}

func TestNestedSessions(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		if err := s.AddDocument(CollectionCurrent, "data/raw_data/a.nii"); err != nil {
			return err
		}
		// Nested scope joins the same transaction and sees the write
		return db.WithSession(true, func(inner *Session) error {
			exists, err := inner.HasDocument(CollectionCurrent, "data/raw_data/a.nii")
			if err != nil {
				return err
			}
			if !exists {
				t.Error("nested session does not see enclosing write")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("nested sessions failed: %v", err)
	}

	err = db.WithSession(false, func(s *Session) error {
		return db.WithSession(true, func(inner *Session) error { return nil })
	})
	if !errors.Is(err, ErrNestedWrite) {
		t.Errorf("expected ErrNestedWrite, got %v", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		if err := s.AddDocument(CollectionCurrent, "data/raw_data/a.nii"); err != nil {
			return err
		}
		if err := s.AddDocument(CollectionCurrent, "data/raw_data/a.nii"); !errors.Is(err, ErrDuplicateDocument) {
			t.Errorf("expected ErrDuplicateDocument, got %v", err)
		}
		if err := s.AddDocument("nope", "x"); !errors.Is(err, ErrUnknownCollection) {
			t.Errorf("expected ErrUnknownCollection, got %v", err)
		}

		// Removal is idempotent
		if err := s.RemoveDocument(CollectionCurrent, "data/raw_data/a.nii"); err != nil {
			return err
		}
		if err := s.RemoveDocument(CollectionCurrent, "data/raw_data/a.nii"); err != nil {
			t.Errorf("second removal should be a no-op, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestValues(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		if err := s.AddField(Field{Collection: CollectionCurrent, Name: "BandWidth", Type: FieldTypeListFloat, Origin: OriginBuiltin, Visibility: true}); err != nil {
			return err
		}
		if err := s.AddDocument(CollectionCurrent, "data/raw_data/a.nii"); err != nil {
			return err
		}

		if err := s.SetValue(CollectionCurrent, "data/raw_data/a.nii", "BandWidth", []float64{50000.0}); err != nil {
			return err
		}
		v, err := s.GetValue(CollectionCurrent, "data/raw_data/a.nii", "BandWidth")
		if err != nil {
			return err
		}
		if !ValuesEqual(FieldTypeListFloat, v, []any{50000.0}) {
			t.Errorf("expected [50000.0], got %v", v)
		}

		// Wrong type
		if err := s.SetValue(CollectionCurrent, "data/raw_data/a.nii", "BandWidth", "not-a-list"); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("expected ErrTypeMismatch, got %v", err)
		}
		// Undeclared field
		if err := s.SetValue(CollectionCurrent, "data/raw_data/a.nii", "Nope", 1); !errors.Is(err, ErrUnknownField) {
			t.Errorf("expected ErrUnknownField, got %v", err)
		}
		// Missing document
		if err := s.SetValue(CollectionCurrent, "data/raw_data/b.nii", "BandWidth", []float64{1}); !errors.Is(err, ErrUnknownDocument) {
			t.Errorf("expected ErrUnknownDocument, got %v", err)
		}

		// NotDefined is always accepted and unsets the field
		if err := s.SetValue(CollectionCurrent, "data/raw_data/a.nii", "BandWidth", NotDefined); err != nil {
			return err
		}
		v, err = s.GetValue(CollectionCurrent, "data/raw_data/a.nii", "BandWidth")
		if err != nil {
			return err
		}
		if v != NotDefined {
			t.Errorf("expected NotDefined, got %v", v)
		}

		// Reading a value of a missing document yields NotDefined
		v, err = s.GetValue(CollectionCurrent, "data/raw_data/b.nii", "BandWidth")
		if err != nil {
			return err
		}
		if v != NotDefined {
			t.Errorf("expected NotDefined for missing document, got %v", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestResetValueIdempotent(t *testing.T) {
	db := openTestDB(t)

	key := "data/raw_data/a.nii"
	err := db.WithSession(true, func(s *Session) error {
		for _, coll := range []string{CollectionCurrent, CollectionInitial} {
			if err := s.AddDocument(coll, key); err != nil {
				return err
			}
			if err := s.SetValue(coll, key, TagType, TypeNifti); err != nil {
				return err
			}
		}
		// Drift the current value away from initial
		if err := s.SetValue(CollectionCurrent, key, TagType, TypeText); err != nil {
			return err
		}

		old, err := s.ResetValue(key, TagType)
		if err != nil {
			return err
		}
		if old != TypeText {
			t.Errorf("expected previous value %s, got %v", TypeText, old)
		}
		v, err := s.GetValue(CollectionCurrent, key, TagType)
		if err != nil {
			return err
		}
		if v != TypeNifti {
			t.Errorf("expected reset to %s, got %v", TypeNifti, v)
		}

		// Resetting twice yields the same state as resetting once
		if _, err := s.ResetValue(key, TagType); err != nil {
			return err
		}
		v, err = s.GetValue(CollectionCurrent, key, TagType)
		if err != nil {
			return err
		}
		if v != TypeNifti {
			t.Errorf("expected reset to stay %s, got %v", TypeNifti, v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestBuiltinFieldProtection(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		if err := s.RemoveField(CollectionCurrent, TagChecksum); !errors.Is(err, ErrBuiltinField) {
			t.Errorf("expected ErrBuiltinField, got %v", err)
		}
		// Schema untouched
		if _, err := s.GetFieldAttributes(CollectionCurrent, TagChecksum); err != nil {
			t.Errorf("builtin field vanished after refused removal: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestRemoveFieldStripsValues(t *testing.T) {
	db := openTestDB(t)

	key := "data/raw_data/a.nii"
	err := db.WithSession(true, func(s *Session) error {
		if err := s.AddField(Field{Collection: CollectionCurrent, Name: "Grade", Type: FieldTypeString, Origin: OriginUser, Visibility: true}); err != nil {
			return err
		}
		if err := s.AddDocument(CollectionCurrent, key); err != nil {
			return err
		}
		if err := s.SetValue(CollectionCurrent, key, "Grade", "A"); err != nil {
			return err
		}
		if err := s.RemoveField(CollectionCurrent, "Grade"); err != nil {
			return err
		}
		if _, err := s.GetValue(CollectionCurrent, key, "Grade"); !errors.Is(err, ErrUnknownField) {
			t.Errorf("expected ErrUnknownField after removal, got %v", err)
		}

		// Re-declaring with another type must not resurrect the old value
		if err := s.AddField(Field{Collection: CollectionCurrent, Name: "Grade", Type: FieldTypeInteger, Origin: OriginUser, Visibility: true}); err != nil {
			return err
		}
		v, err := s.GetValue(CollectionCurrent, key, "Grade")
		if err != nil {
			return err
		}
		if v != NotDefined {
			t.Errorf("expected NotDefined after re-declaration, got %v", v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestSetShownTags(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		if err := s.SetShownTags([]string{TagFilename}); err != nil {
			return err
		}
		shown, err := s.ShownTags()
		if err != nil {
			return err
		}
		if len(shown) != 1 || shown[0] != TagFilename {
			t.Errorf("expected only FileName shown, got %v", shown)
		}

		if err := s.SetShownTags([]string{"NoSuchTag"}); !errors.Is(err, ErrUnknownField) {
			t.Errorf("expected ErrUnknownField, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}

func TestNewBrick(t *testing.T) {
	db := openTestDB(t)

	err := db.WithSession(true, func(s *Session) error {
		id, err := s.NewBrick("smooth")
		if err != nil {
			return err
		}
		doc, err := s.GetDocument(CollectionBrick, id)
		if err != nil {
			return err
		}
		if doc == nil {
			t.Fatal("expected brick document")
		}
		if doc.Get("Name") != "smooth" {
			t.Errorf("expected Name smooth, got %v", doc.Get("Name"))
		}
		if doc.Get("Init") != BrickNotDone || doc.Get("Exec") != BrickNotDone {
			t.Errorf("expected fresh brick to be %s", BrickNotDone)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
}
