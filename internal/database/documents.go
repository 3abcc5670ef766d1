package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a single tracked record: a primary key plus its set tag
// values. Unset tags are absent from Fields; Get returns the NotDefined
// sentinel for them.
type Document struct {
	Name   string
	Fields map[string]any
}

// Get returns the canonical value of a field, or NotDefined if unset
func (doc *Document) Get(field string) any {
	if v, ok := doc.Fields[field]; ok {
		return v
	}
	return NotDefined
}

// AddCollection creates a new named collection
func (s *Session) AddCollection(name string) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	exists, err := s.HasCollection(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("collection %s already exists", name)
	}
	if _, err := s.tx.Exec("INSERT INTO collections (name) VALUES (?)", name); err != nil {
		return fmt.Errorf("failed to add collection %s: %w", name, err)
	}
	return nil
}

// HasCollection reports whether a collection exists
func (s *Session) HasCollection(name string) (bool, error) {
	var count int
	err := s.tx.QueryRow("SELECT COUNT(*) FROM collections WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query collection %s: %w", name, err)
	}
	return count > 0, nil
}

// CollectionNames returns the names of all collections
func (s *Session) CollectionNames() ([]string, error) {
	rows, err := s.tx.Query("SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Session) checkCollection(name string) error {
	exists, err := s.HasCollection(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return nil
}

// AddDocument creates an empty document in a collection
func (s *Session) AddDocument(collection, pk string) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	if err := s.checkCollection(collection); err != nil {
		return err
	}
	exists, err := s.HasDocument(collection, pk)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateDocument, pk, collection)
	}
	_, err = s.tx.Exec(
		"INSERT INTO documents (collection, pk, fields_json) VALUES (?, ?, '{}')",
		collection, pk)
	if err != nil {
		return fmt.Errorf("failed to add document %s: %w", pk, err)
	}
	return nil
}

// RemoveDocument deletes a document from one collection. Idempotent;
// removing from current does not touch initial, callers removing a
// scan for good must delete from both.
func (s *Session) RemoveDocument(collection, pk string) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	if err := s.checkCollection(collection); err != nil {
		return err
	}
	if _, err := s.tx.Exec("DELETE FROM documents WHERE collection = ? AND pk = ?", collection, pk); err != nil {
		return fmt.Errorf("failed to remove document %s: %w", pk, err)
	}
	return nil
}

// HasDocument reports whether a document exists in a collection
func (s *Session) HasDocument(collection, pk string) (bool, error) {
	var count int
	err := s.tx.QueryRow(
		"SELECT COUNT(*) FROM documents WHERE collection = ? AND pk = ?",
		collection, pk).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query document %s: %w", pk, err)
	}
	return count > 0, nil
}

// GetDocument retrieves one document, or nil if it does not exist
func (s *Session) GetDocument(collection, pk string) (*Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}

	var raw string
	err := s.tx.QueryRow(
		"SELECT fields_json FROM documents WHERE collection = ? AND pk = ?",
		collection, pk).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", pk, err)
	}

	types, err := s.fieldTypes(collection)
	if err != nil {
		return nil, err
	}
	return decodeDocument(pk, raw, types)
}

// Documents retrieves every document of a collection in primary-key
// order. Callers needing another order sort the result themselves.
func (s *Session) Documents(collection string) ([]Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}

	types, err := s.fieldTypes(collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(
		"SELECT pk, fields_json FROM documents WHERE collection = ? ORDER BY pk",
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var pk, raw string
		if err := rows.Scan(&pk, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(pk, raw, types)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DocumentNames returns the primary keys of a collection in key order
func (s *Session) DocumentNames(collection string) ([]string, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(
		"SELECT pk FROM documents WHERE collection = ? ORDER BY pk", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query document names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("failed to scan document name: %w", err)
		}
		names = append(names, pk)
	}
	return names, rows.Err()
}

// CountDocuments returns the number of documents in a collection
func (s *Session) CountDocuments(collection string) (int, error) {
	if err := s.checkCollection(collection); err != nil {
		return 0, err
	}
	var count int
	err := s.tx.QueryRow("SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// GetValue returns the canonical value of a field for a document, or
// NotDefined when the document does not exist or the field is unset.
// Referencing an undeclared field is an error.
func (s *Session) GetValue(collection, pk, field string) (any, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	types, err := s.fieldTypes(collection)
	if err != nil {
		return nil, err
	}
	t, declared := types[field]
	if !declared {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownField, field, collection)
	}

	var raw string
	err = s.tx.QueryRow(
		"SELECT fields_json FROM documents WHERE collection = ? AND pk = ?",
		collection, pk).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return NotDefined, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", pk, err)
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", pk, err)
	}
	v, ok := stored[field]
	if !ok || v == nil {
		return NotDefined, nil
	}
	canonical, err := Coerce(t, v)
	if err != nil {
		return nil, fmt.Errorf("corrupt value for %s.%s: %w", pk, field, err)
	}
	return canonical, nil
}

// SetValue writes one field value. The NotDefined sentinel unsets the
// field; any other value must coerce to the field's declared type.
func (s *Session) SetValue(collection, pk, field string, value any) error {
	return s.SetValues(collection, pk, map[string]any{field: value})
}

// SetValues writes several field values of one document atomically
func (s *Session) SetValues(collection, pk string, values map[string]any) error {
	if err := s.requireWrite(); err != nil {
		return err
	}
	if err := s.checkCollection(collection); err != nil {
		return err
	}
	types, err := s.fieldTypes(collection)
	if err != nil {
		return err
	}

	var raw string
	err = s.tx.QueryRow(
		"SELECT fields_json FROM documents WHERE collection = ? AND pk = ?",
		collection, pk).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s in %s", ErrUnknownDocument, pk, collection)
	}
	if err != nil {
		return fmt.Errorf("failed to get document %s: %w", pk, err)
	}

	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("corrupt document %s: %w", pk, err)
	}

	for field, value := range values {
		t, declared := types[field]
		if !declared {
			return fmt.Errorf("%w: %s in %s", ErrUnknownField, field, collection)
		}
		if _, unset := value.(notDefined); unset || value == nil {
			delete(stored, field)
			continue
		}
		canonical, err := Coerce(t, value)
		if err != nil {
			return fmt.Errorf("field %s of %s: %w", field, pk, err)
		}
		stored[field] = Serialize(t, canonical)
	}

	return s.writeDocument(collection, pk, stored)
}

// RemoveValue unsets a field on a document. Idempotent.
func (s *Session) RemoveValue(collection, pk, field string) error {
	return s.SetValue(collection, pk, field, NotDefined)
}

// ResetValue restores a scan's current value from its initial value and
// returns the previous current value.
func (s *Session) ResetValue(pk, field string) (any, error) {
	old, err := s.GetValue(CollectionCurrent, pk, field)
	if err != nil {
		return nil, err
	}
	initial, err := s.GetValue(CollectionInitial, pk, field)
	if err != nil {
		return nil, err
	}
	if err := s.SetValue(CollectionCurrent, pk, field, initial); err != nil {
		return nil, err
	}
	return old, nil
}

func (s *Session) writeDocument(collection, pk string, stored map[string]any) error {
	buf, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", pk, err)
	}
	_, err = s.tx.Exec(
		"UPDATE documents SET fields_json = ? WHERE collection = ? AND pk = ?",
		string(buf), collection, pk)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", pk, err)
	}
	return nil
}

// decodeDocument turns a stored JSON row into canonical values
func decodeDocument(pk, raw string, types map[string]FieldType) (*Document, error) {
	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("corrupt document %s: %w", pk, err)
	}

	fields := make(map[string]any, len(stored))
	for k, v := range stored {
		t, declared := types[k]
		if !declared || v == nil {
			// Value for a field dropped outside a session; treat as unset.
			continue
		}
		canonical, err := Coerce(t, v)
		if err != nil {
			return nil, fmt.Errorf("corrupt value for %s.%s: %w", pk, k, err)
		}
		fields[k] = canonical
	}
	return &Document{Name: pk, Fields: fields}, nil
}
