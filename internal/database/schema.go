package database

// Built-in collections. "current" holds the present tag values of every
// tracked document, "initial" the values as first recorded at import
// time. "brick" records pipeline process executions, "history" the
// persisted undo/redo stacks.
const (
	CollectionCurrent = "current"
	CollectionInitial = "initial"
	CollectionBrick   = "brick"
	CollectionHistory = "history"
)

// Built-in tags present on every scan document
const (
	TagFilename = "FileName"
	TagChecksum = "Checksum"
	TagType     = "Type"
	TagExpType  = "Exp Type"
	TagBricks   = "Bricks"
	TagHistory  = "History"
)

// Field provenance markers
const (
	OriginBuiltin = "builtin"
	OriginUser    = "user"
)

// Document type sentinels for the Type tag
const (
	TypeNifti  = "Scan"
	TypeBvec   = "Bvec"
	TypeBval   = "Bval"
	TypeMatrix = "Matrix"
	TypeText   = "Text"
)

// Brick lifecycle states
const (
	BrickNotDone = "Not Done"
	BrickDone    = "Done"
)

// Schema v1 - collections, field declarations and documents.
// Document tag values live in a JSON column keyed by field name; an
// absent key is the "not defined" sentinel. Field declarations carry
// the typing and visibility attributes per (collection, field).
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Named collections of documents
CREATE TABLE IF NOT EXISTS collections (
  name TEXT PRIMARY KEY
);

-- Field (tag) declarations, one row per (collection, field)
CREATE TABLE IF NOT EXISTS fields (
  collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  unit TEXT NOT NULL DEFAULT '',
  default_value TEXT,
  visibility INTEGER NOT NULL DEFAULT 1,
  origin TEXT NOT NULL DEFAULT 'user',
  PRIMARY KEY (collection, name)
);

CREATE INDEX IF NOT EXISTS idx_fields_collection ON fields(collection);

-- Documents, one row per (collection, primary key)
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
  pk TEXT NOT NULL,
  fields_json TEXT NOT NULL DEFAULT '{}',
  PRIMARY KEY (collection, pk)
);

CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// builtinSchema describes the collections and field declarations seeded
// into every new project database. Seeding is idempotent.
var builtinCollections = []string{
	CollectionCurrent,
	CollectionInitial,
	CollectionBrick,
	CollectionHistory,
}

func builtinFields() []Field {
	var fields []Field

	// Scan tags, mirrored in current and initial
	for _, coll := range []string{CollectionCurrent, CollectionInitial} {
		fields = append(fields,
			Field{Collection: coll, Name: TagFilename, Type: FieldTypeString, Description: "Path of the scan", Visibility: true, Origin: OriginBuiltin},
			Field{Collection: coll, Name: TagChecksum, Type: FieldTypeString, Description: "MD5 checksum of the file content", Visibility: false, Origin: OriginBuiltin},
			Field{Collection: coll, Name: TagType, Type: FieldTypeString, Description: "Type of the file", Visibility: true, Origin: OriginBuiltin},
			Field{Collection: coll, Name: TagExpType, Type: FieldTypeString, Description: "Experiment type", Visibility: true, Origin: OriginBuiltin},
			Field{Collection: coll, Name: TagBricks, Type: FieldTypeListString, Description: "Bricks that produced this document", Visibility: false, Origin: OriginBuiltin},
			Field{Collection: coll, Name: TagHistory, Type: FieldTypeString, Description: "History record reference", Visibility: false, Origin: OriginBuiltin},
		)
	}

	// Brick provenance records
	fields = append(fields,
		Field{Collection: CollectionBrick, Name: "Name", Type: FieldTypeString, Description: "Process name", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Init", Type: FieldTypeString, Description: "Initialization status", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Exec", Type: FieldTypeString, Description: "Execution status", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Init Time", Type: FieldTypeDatetime, Description: "Initialization timestamp", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Exec Time", Type: FieldTypeDatetime, Description: "Execution timestamp", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Inputs", Type: FieldTypeMapping, Description: "Process input parameters", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionBrick, Name: "Outputs", Type: FieldTypeMapping, Description: "Process output parameters", Visibility: false, Origin: OriginBuiltin},
	)

	// Persisted undo/redo stacks
	fields = append(fields,
		Field{Collection: CollectionHistory, Name: "Stack", Type: FieldTypeString, Description: "Owning stack, undo or redo", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionHistory, Name: "Seq", Type: FieldTypeInteger, Description: "Position within the stack", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionHistory, Name: "Kind", Type: FieldTypeString, Description: "Operation record kind", Visibility: false, Origin: OriginBuiltin},
		Field{Collection: CollectionHistory, Name: "Payload", Type: FieldTypeMapping, Description: "Serialized operation record", Visibility: false, Origin: OriginBuiltin},
	)

	return fields
}
