package database

import (
	"database/sql"
	"fmt"
)

// Session is a scoped view over the database. All data-access methods
// hang off a Session so that every read observes a consistent snapshot
// and every write either commits as a whole when the outermost write
// scope exits cleanly, or is rolled back entirely.
//
// Sessions are re-entrant: a WithSession call made while another scope
// is open on the same Database joins the enclosing transaction instead
// of deadlocking on the single connection. A write scope cannot be
// opened inside a read-only scope (ErrNestedWrite).
//
// A Session is bound to one logical thread of control; it is not safe
// for concurrent use from multiple goroutines.
type Session struct {
	d     *Database
	tx    *sql.Tx
	write bool
	depth int
}

// WithSession runs fn inside a scoped session. With write=true the
// transaction commits when the outermost scope returns nil; any error
// (or panic) rolls everything back. Read-only sessions always roll back
// on exit, which releases the snapshot.
func (d *Database) WithSession(write bool, fn func(*Session) error) error {
	d.mu.Lock()
	if s := d.cur; s != nil {
		// Re-entrant call: join the enclosing scope.
		if write && !s.write {
			d.mu.Unlock()
			return ErrNestedWrite
		}
		s.depth++
		d.mu.Unlock()

		err := fn(s)

		d.mu.Lock()
		s.depth--
		d.mu.Unlock()
		return err
	}

	tx, err := d.db.Begin()
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to begin session: %w", err)
	}

	s := &Session{d: d, tx: tx, write: write, depth: 1}
	d.cur = s
	d.mu.Unlock()

	committed := false
	defer func() {
		d.mu.Lock()
		d.cur = nil
		d.mu.Unlock()
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(s); err != nil {
		return err
	}

	if !write {
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	committed = true
	return nil
}

// Writable reports whether the session accepts mutations
func (s *Session) Writable() bool {
	return s.write
}

func (s *Session) requireWrite() error {
	if !s.write {
		return fmt.Errorf("session is read-only")
	}
	return nil
}
