package database

import (
	"time"

	"github.com/google/uuid"
)

// NewBrick records a fresh pipeline process execution instance and
// returns its identifier. The brick starts out not initialized and not
// executed; callers update Init/Exec and the parameter snapshots
// through SetValues as the process advances.
func (s *Session) NewBrick(name string) (string, error) {
	id := uuid.NewString()
	if err := s.AddDocument(CollectionBrick, id); err != nil {
		return "", err
	}
	err := s.SetValues(CollectionBrick, id, map[string]any{
		"Name":      name,
		"Init":      BrickNotDone,
		"Exec":      BrickNotDone,
		"Init Time": time.Now(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
