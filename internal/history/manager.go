package history

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clemv/mritrack/internal/database"
)

// Stack names inside the history collection
const (
	stackUndo = "undo"
	stackRedo = "redo"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Manager drives the undo and redo stacks persisted in the history
// collection. It holds no state of its own; two managers over the same
// database see the same stacks.
type Manager struct{}

// NewManager returns a history manager
func NewManager() *Manager {
	return &Manager{}
}

// Record pushes a freshly performed operation onto the undo stack and
// discards the redo stack, which the new operation invalidates.
func (m *Manager) Record(s *database.Session, r Record) error {
	if err := m.clear(s, stackRedo); err != nil {
		return err
	}
	return m.push(s, stackUndo, r)
}

// Undo inverts the most recent operation and moves its record to the
// redo stack. Returns ErrNothingToUndo on an empty stack.
func (m *Manager) Undo(s *database.Session) (Record, error) {
	r, ok, err := m.pop(s, stackUndo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNothingToUndo
	}
	if err := r.undo(s); err != nil {
		return nil, fmt.Errorf("failed to undo %s: %w", r.Kind(), err)
	}
	if err := m.push(s, stackRedo, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Redo replays the most recently undone operation and moves its record
// back to the undo stack. Returns ErrNothingToRedo on an empty stack.
func (m *Manager) Redo(s *database.Session) (Record, error) {
	r, ok, err := m.pop(s, stackRedo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNothingToRedo
	}
	if err := r.redo(s); err != nil {
		return nil, fmt.Errorf("failed to redo %s: %w", r.Kind(), err)
	}
	if err := m.push(s, stackUndo, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Depths returns the sizes of the undo and redo stacks
func (m *Manager) Depths(s *database.Session) (int, int, error) {
	docs, err := s.Documents(database.CollectionHistory)
	if err != nil {
		return 0, 0, err
	}
	var undo, redo int
	for i := range docs {
		switch docs[i].Get("Stack") {
		case stackUndo:
			undo++
		case stackRedo:
			redo++
		}
	}
	return undo, redo, nil
}

// push appends a record to a stack with the next sequence number
func (m *Manager) push(s *database.Session, stack string, r Record) error {
	kind, payload, err := encodeRecord(r)
	if err != nil {
		return err
	}

	seq, err := m.nextSeq(s)
	if err != nil {
		return err
	}

	pk := uuid.NewString()
	if err := s.AddDocument(database.CollectionHistory, pk); err != nil {
		return err
	}
	return s.SetValues(database.CollectionHistory, pk, map[string]any{
		"Stack":   stack,
		"Seq":     seq,
		"Kind":    kind,
		"Payload": payload,
	})
}

// pop removes and decodes the highest-sequence record of a stack
func (m *Manager) pop(s *database.Session, stack string) (Record, bool, error) {
	doc, err := m.top(s, stack)
	if err != nil {
		return nil, false, err
	}
	if doc == nil {
		return nil, false, nil
	}

	kind, _ := doc.Get("Kind").(string)
	payload, _ := doc.Get("Payload").(map[string]any)
	r, err := decodeRecord(kind, payload)
	if err != nil {
		return nil, false, err
	}

	if err := s.RemoveDocument(database.CollectionHistory, doc.Name); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// top returns the highest-sequence record document of a stack, or nil
func (m *Manager) top(s *database.Session, stack string) (*database.Document, error) {
	docs, err := s.Documents(database.CollectionHistory)
	if err != nil {
		return nil, err
	}

	var best *database.Document
	var bestSeq int64
	for i := range docs {
		if docs[i].Get("Stack") != stack {
			continue
		}
		seq, ok := docs[i].Get("Seq").(int64)
		if !ok {
			continue
		}
		if best == nil || seq > bestSeq {
			best = &docs[i]
			bestSeq = seq
		}
	}
	return best, nil
}

// clear drops every record of a stack
func (m *Manager) clear(s *database.Session, stack string) error {
	docs, err := s.Documents(database.CollectionHistory)
	if err != nil {
		return err
	}
	for i := range docs {
		if docs[i].Get("Stack") != stack {
			continue
		}
		if err := s.RemoveDocument(database.CollectionHistory, docs[i].Name); err != nil {
			return err
		}
	}
	return nil
}

// nextSeq returns a sequence number above every stored record's.
// Sequences are global across both stacks, so a record moved between
// stacks keeps its relative age.
func (m *Manager) nextSeq(s *database.Session) (int64, error) {
	docs, err := s.Documents(database.CollectionHistory)
	if err != nil {
		return 0, err
	}
	var max int64
	for i := range docs {
		if seq, ok := docs[i].Get("Seq").(int64); ok && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}
