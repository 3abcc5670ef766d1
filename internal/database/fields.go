package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is a tag declaration: the typed, documented attribute of the
// documents of one collection.
type Field struct {
	Collection  string
	Name        string
	Type        FieldType
	Description string
	Unit        string
	Default     any
	Visibility  bool
	Origin      string
}

// AddField declares a new field in a collection
func (s *Session) AddField(f Field) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	if err := s.checkCollection(f.Collection); err != nil {
		return err
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: invalid field type %q", ErrTypeMismatch, f.Type)
	}
	exists, err := s.HasField(f.Collection, f.Name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateField, f.Name, f.Collection)
	}

	var def sql.NullString
	if f.Default != nil {
		canonical, err := Coerce(f.Type, f.Default)
		if err != nil {
			return fmt.Errorf("default value of %s: %w", f.Name, err)
		}
		raw, err := json.Marshal(Serialize(f.Type, canonical))
		if err != nil {
			return fmt.Errorf("failed to encode default of %s: %w", f.Name, err)
		}
		def = sql.NullString{String: string(raw), Valid: true}
	}
	if f.Origin == "" {
		f.Origin = OriginUser
	}

	_, err = s.tx.Exec(`
		INSERT INTO fields
			(collection, name, type, description, unit, default_value, visibility, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.Collection, f.Name, string(f.Type), f.Description, f.Unit, def, f.Visibility, f.Origin)
	if err != nil {
		return fmt.Errorf("failed to add field %s: %w", f.Name, err)
	}
	return nil
}

// AddFields declares several fields at once
func (s *Session) AddFields(fields []Field) error {
	for _, f := range fields {
		if err := s.AddField(f); err != nil {
			return err
		}
	}
	return nil
}

// RemoveField drops a user field and its values from every document of
// the collection. System-owned fields refuse removal.
func (s *Session) RemoveField(collection, name string) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	f, err := s.GetFieldAttributes(collection, name)
	if err != nil {
		return err
	}
	if f.Origin == OriginBuiltin {
		return fmt.Errorf("%w: %s in %s", ErrBuiltinField, name, collection)
	}

	if _, err := s.tx.Exec(
		"DELETE FROM fields WHERE collection = ? AND name = ?", collection, name); err != nil {
		return fmt.Errorf("failed to remove field %s: %w", name, err)
	}

	// Strip the stored values so the key cannot resurface if the field
	// name is later re-declared with another type.
	rows, err := s.tx.Query(
		"SELECT pk, fields_json FROM documents WHERE collection = ?", collection)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	type docRow struct{ pk, raw string }
	var docs []docRow
	for rows.Next() {
		var r docRow
		if err := rows.Scan(&r.pk, &r.raw); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range docs {
		var stored map[string]any
		if err := json.Unmarshal([]byte(r.raw), &stored); err != nil {
			return fmt.Errorf("corrupt document %s: %w", r.pk, err)
		}
		if _, ok := stored[name]; !ok {
			continue
		}
		delete(stored, name)
		if err := s.writeDocument(collection, r.pk, stored); err != nil {
			return err
		}
	}
	return nil
}

// HasField reports whether a field is declared in a collection
func (s *Session) HasField(collection, name string) (bool, error) {
	var count int
	err := s.tx.QueryRow(
		"SELECT COUNT(*) FROM fields WHERE collection = ? AND name = ?",
		collection, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query field %s: %w", name, err)
	}
	return count > 0, nil
}

// GetFieldAttributes returns the full declaration of one field
func (s *Session) GetFieldAttributes(collection, name string) (*Field, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}

	row := s.tx.QueryRow(`
		SELECT collection, name, type, description, unit, default_value, visibility, origin
		FROM fields WHERE collection = ? AND name = ?
	`, collection, name)

	f, err := scanField(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownField, name, collection)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field %s: %w", name, err)
	}
	return f, nil
}

// Fields returns every field declaration of a collection in name order
func (s *Session) Fields(collection string) ([]Field, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(`
		SELECT collection, name, type, description, unit, default_value, visibility, origin
		FROM fields WHERE collection = ? ORDER BY name
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, *f)
	}
	return fields, rows.Err()
}

// FieldNames returns the declared field names of a collection
func (s *Session) FieldNames(collection string) ([]string, error) {
	fields, err := s.Fields(collection)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

// fieldTypes returns the declared type of every field of a collection
func (s *Session) fieldTypes(collection string) (map[string]FieldType, error) {
	rows, err := s.tx.Query("SELECT name, type FROM fields WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query field types: %w", err)
	}
	defer rows.Close()

	types := make(map[string]FieldType)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan field type: %w", err)
		}
		types[name] = FieldType(typ)
	}
	return types, rows.Err()
}

// ShownTags returns the names of the fields shown in the browser, i.e.
// the visible fields of the current collection.
func (s *Session) ShownTags() ([]string, error) {
	rows, err := s.tx.Query(
		"SELECT name FROM fields WHERE collection = ? AND visibility = 1 ORDER BY name",
		CollectionCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to query shown tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan shown tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetShownTags sets exactly which fields of the current collection are
// visible; every other field is hidden.
func (s *Session) SetShownTags(names []string) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	shown := make(map[string]bool, len(names))
	for _, n := range names {
		exists, err := s.HasField(CollectionCurrent, n)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s in %s", ErrUnknownField, n, CollectionCurrent)
		}
		shown[n] = true
	}

	all, err := s.FieldNames(CollectionCurrent)
	if err != nil {
		return err
	}
	for _, n := range all {
		_, err := s.tx.Exec(
			"UPDATE fields SET visibility = ? WHERE collection = ? AND name = ?",
			shown[n], CollectionCurrent, n)
		if err != nil {
			return fmt.Errorf("failed to update visibility of %s: %w", n, err)
		}
	}
	return nil
}

type rowLike interface {
	Scan(dest ...any) error
}

func scanField(row rowLike) (*Field, error) {
	var f Field
	var typ string
	var def sql.NullString
	err := row.Scan(&f.Collection, &f.Name, &typ, &f.Description, &f.Unit, &def, &f.Visibility, &f.Origin)
	if err != nil {
		return nil, err
	}
	f.Type = FieldType(typ)
	if def.Valid {
		var raw any
		if err := json.Unmarshal([]byte(def.String), &raw); err != nil {
			return nil, fmt.Errorf("corrupt default of %s: %w", f.Name, err)
		}
		canonical, err := Coerce(f.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt default of %s: %w", f.Name, err)
		}
		f.Default = canonical
	}
	return &f, nil
}
