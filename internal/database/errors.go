package database

import "errors"

// Sentinel errors for the metadata store. Callers match with errors.Is;
// wrapped messages carry the offending collection/document/field names.
var (
	// ErrUnknownCollection indicates an operation referenced a collection
	// that does not exist
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDuplicateDocument indicates an attempt to create a document whose
	// primary key already exists in the collection
	ErrDuplicateDocument = errors.New("document already exists")

	// ErrUnknownDocument indicates a write targeted a document that does
	// not exist in the collection
	ErrUnknownDocument = errors.New("unknown document")

	// ErrDuplicateField indicates an attempt to declare a field whose name
	// already exists in the collection
	ErrDuplicateField = errors.New("field already exists")

	// ErrUnknownField indicates a read or write targeted an undeclared field
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch indicates a value could not be coerced to the
	// field's declared type
	ErrTypeMismatch = errors.New("value does not match field type")

	// ErrBuiltinField indicates an attempt to remove a system-owned field
	ErrBuiltinField = errors.New("builtin field cannot be removed")

	// ErrNestedWrite indicates a write session was requested inside an
	// enclosing read-only session
	ErrNestedWrite = errors.New("write session nested inside read-only session")
)
