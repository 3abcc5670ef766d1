// Package history implements persistent undo/redo for tag operations.
// Every mutation of the current collection is captured as a Record that
// knows how to invert and replay itself; the manager keeps the two
// stacks in the history collection of the project database, so undo
// survives process restarts.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/clemv/mritrack/internal/database"
)

// Record kinds as persisted in the history collection
const (
	KindModifiedValues = "modified_values"
	KindAddTag         = "add_tag"
	KindRemoveTag      = "remove_tag"
	KindCloneTag       = "clone_tag"
	KindAddScans       = "add_scans"
)

// Record is one undoable operation. Values inside records are kept in
// their serialized form so the whole record survives a JSON round trip
// through the history collection.
type Record interface {
	Kind() string
	undo(s *database.Session) error
	redo(s *database.Session) error
}

// ValueChange is one cell edit: the old and new serialized values of a
// field on one scan. A nil value means the field was or becomes unset.
type ValueChange struct {
	Document string             `json:"document"`
	Field    string             `json:"field"`
	Type     database.FieldType `json:"type"`
	Old      any                `json:"old"`
	New      any                `json:"new"`
}

// ModifiedValues records a batch of cell edits on the current collection
type ModifiedValues struct {
	Changes []ValueChange `json:"changes"`
}

func (ModifiedValues) Kind() string { return KindModifiedValues }

func (r ModifiedValues) undo(s *database.Session) error {
	for _, c := range r.Changes {
		if err := restoreValue(s, c.Document, c.Field, c.Old); err != nil {
			return err
		}
	}
	return nil
}

func (r ModifiedValues) redo(s *database.Session) error {
	for _, c := range r.Changes {
		if err := restoreValue(s, c.Document, c.Field, c.New); err != nil {
			return err
		}
	}
	return nil
}

// restoreValue writes a serialized value back onto a scan. Scans or
// fields removed since the record was taken are silently skipped, so an
// old stack entry never blocks the rest of the batch.
func restoreValue(s *database.Session, pk, field string, value any) error {
	exists, err := s.HasDocument(database.CollectionCurrent, pk)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	declared, err := s.HasField(database.CollectionCurrent, field)
	if err != nil {
		return err
	}
	if !declared {
		return nil
	}
	if value == nil {
		return s.SetValue(database.CollectionCurrent, pk, field, database.NotDefined)
	}
	return s.SetValue(database.CollectionCurrent, pk, field, value)
}

// TagDecl is the declaration part of a tag operation record
type TagDecl struct {
	Name        string             `json:"name"`
	Type        database.FieldType `json:"type"`
	Description string             `json:"description"`
	Unit        string             `json:"unit"`
	Default     any                `json:"default"`
	Visibility  bool               `json:"visibility"`
}

func (d TagDecl) field(collection string) database.Field {
	return database.Field{
		Collection:  collection,
		Name:        d.Name,
		Type:        d.Type,
		Description: d.Description,
		Unit:        d.Unit,
		Default:     d.Default,
		Visibility:  d.Visibility,
		Origin:      database.OriginUser,
	}
}

// declare adds the tag to current and initial, skipping collections
// where it already exists
func (d TagDecl) declare(s *database.Session) error {
	for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
		exists, err := s.HasField(coll, d.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.AddField(d.field(coll)); err != nil {
			return err
		}
	}
	return nil
}

// retract removes the tag from current and initial where present
func (d TagDecl) retract(s *database.Session) error {
	for _, coll := range []string{database.CollectionCurrent, database.CollectionInitial} {
		exists, err := s.HasField(coll, d.Name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.RemoveField(coll, d.Name); err != nil {
			return err
		}
	}
	return nil
}

// TagValue carries the serialized current and initial values a tag held
// on one scan when the record was taken
type TagValue struct {
	Document string `json:"document"`
	Current  any    `json:"current"`
	Initial  any    `json:"initial"`
}

// restoreTagValues writes saved per-scan values back after a tag
// declaration has been restored
func restoreTagValues(s *database.Session, name string, values []TagValue) error {
	for _, v := range values {
		for _, c := range []struct {
			collection string
			value      any
		}{
			{database.CollectionCurrent, v.Current},
			{database.CollectionInitial, v.Initial},
		} {
			if c.value == nil {
				continue
			}
			exists, err := s.HasDocument(c.collection, v.Document)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			if err := s.SetValue(c.collection, v.Document, name, c.value); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddTag records the creation of a user tag
type AddTag struct {
	Tag TagDecl `json:"tag"`
}

func (AddTag) Kind() string { return KindAddTag }

func (r AddTag) undo(s *database.Session) error { return r.Tag.retract(s) }
func (r AddTag) redo(s *database.Session) error { return r.Tag.declare(s) }

// RemoveTag records the removal of a user tag together with every value
// it held, so undo can bring both the declaration and the data back.
type RemoveTag struct {
	Tag    TagDecl    `json:"tag"`
	Values []TagValue `json:"values"`
}

func (RemoveTag) Kind() string { return KindRemoveTag }

func (r RemoveTag) undo(s *database.Session) error {
	if err := r.Tag.declare(s); err != nil {
		return err
	}
	return restoreTagValues(s, r.Tag.Name, r.Values)
}

func (r RemoveTag) redo(s *database.Session) error { return r.Tag.retract(s) }

// CloneTag records the creation of a tag as a copy of another, values
// included. Replaying restores the values captured at clone time rather
// than re-reading the source, which may have changed since.
type CloneTag struct {
	Tag    TagDecl    `json:"tag"`
	Source string     `json:"source"`
	Values []TagValue `json:"values"`
}

func (CloneTag) Kind() string { return KindCloneTag }

func (r CloneTag) undo(s *database.Session) error { return r.Tag.retract(s) }

func (r CloneTag) redo(s *database.Session) error {
	if err := r.Tag.declare(s); err != nil {
		return err
	}
	return restoreTagValues(s, r.Tag.Name, r.Values)
}

// ValueAdded is one tag value written during an import
type ValueAdded struct {
	Document string `json:"document"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
}

// AddScans records a bulk import. Undoing an import is deliberately a
// no-op: the imported files already live under the project folder and
// deleting database rows would leave them orphaned on disk.
type AddScans struct {
	Documents []string     `json:"documents"`
	Values    []ValueAdded `json:"values"`
}

func (AddScans) Kind() string { return KindAddScans }

func (AddScans) undo(*database.Session) error { return nil }
func (AddScans) redo(*database.Session) error { return nil }

// encodeRecord flattens a record into its persisted kind and payload
func encodeRecord(r Record) (string, map[string]any, error) {
	buf, err := json.Marshal(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s record: %w", r.Kind(), err)
	}
	var payload map[string]any
	if err := json.Unmarshal(buf, &payload); err != nil {
		return "", nil, fmt.Errorf("failed to encode %s record: %w", r.Kind(), err)
	}
	return r.Kind(), payload, nil
}

// decodeRecord rebuilds a record from its persisted kind and payload
func decodeRecord(kind string, payload map[string]any) (Record, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("corrupt %s record: %w", kind, err)
	}

	var r Record
	switch kind {
	case KindModifiedValues:
		var rec ModifiedValues
		err = json.Unmarshal(buf, &rec)
		r = rec
	case KindAddTag:
		var rec AddTag
		err = json.Unmarshal(buf, &rec)
		r = rec
	case KindRemoveTag:
		var rec RemoveTag
		err = json.Unmarshal(buf, &rec)
		r = rec
	case KindCloneTag:
		var rec CloneTag
		err = json.Unmarshal(buf, &rec)
		r = rec
	case KindAddScans:
		var rec AddScans
		err = json.Unmarshal(buf, &rec)
		r = rec
	default:
		return nil, fmt.Errorf("unknown history record kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("corrupt %s record: %w", kind, err)
	}
	return r, nil
}
