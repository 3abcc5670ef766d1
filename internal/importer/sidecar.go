package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/clemv/mritrack/internal/database"
)

// SidecarTag is one tag extracted from a scan's sidecar JSON file,
// ready to be declared and written to the database.
type SidecarTag struct {
	Name        string
	Type        database.FieldType
	Description string
	Unit        string
	Value       any
}

// tagWrapper is the rich sidecar shape: a metadata envelope around the
// value array. Tags may also appear as bare JSON values without it.
type tagWrapper struct {
	Format      string `json:"format"`
	Description string `json:"description"`
	Units       string `json:"units"`
	Type        string `json:"type"`
	Value       any    `json:"value"`
}

// sidecarTypes maps the converter's type names onto field types
var sidecarTypes = map[string]database.FieldType{
	"string":   database.FieldTypeString,
	"integer":  database.FieldTypeInteger,
	"int":      database.FieldTypeInteger,
	"float":    database.FieldTypeFloat,
	"boolean":  database.FieldTypeBoolean,
	"date":     database.FieldTypeDate,
	"datetime": database.FieldTypeDatetime,
	"time":     database.FieldTypeTime,
}

// layoutTokens translates the converter's display date format tokens
// into Go reference-time tokens. Longest token first so SSSSSS is not
// eaten by SSS, and MM not by M.
var layoutTokens = []struct{ display, layout string }{
	{"SSSSSS", "000000"},
	{"SSS", "000"},
	{"yyyy", "2006"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

// displayLayout converts a sidecar display format into a Go time layout
func displayLayout(display string) string {
	layout := display
	for _, t := range layoutTokens {
		layout = strings.ReplaceAll(layout, t.display, t.layout)
	}
	return layout
}

// ReadSidecar extracts the tags of one scan from its sidecar JSON file.
// Tags with empty or unset values are skipped. The result is sorted by
// tag name so a run declares fields in a stable order.
func ReadSidecar(path string) ([]SidecarTag, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt sidecar %s: %w", path, err)
	}

	var tags []SidecarTag
	for name, entry := range entries {
		tag, ok, err := parseSidecarTag(name, entry)
		if err != nil {
			return nil, fmt.Errorf("sidecar tag %s: %w", name, err)
		}
		if !ok {
			continue
		}
		tags = append(tags, tag)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func parseSidecarTag(name string, raw json.RawMessage) (SidecarTag, bool, error) {
	if wrapped, ok := asWrapper(raw); ok {
		return parseWrappedTag(name, wrapped)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return SidecarTag{}, false, err
	}
	return parseBareTag(name, value)
}

// asWrapper detects the metadata envelope: a JSON object carrying a
// "value" key. Bare mapping values do not use that key.
func asWrapper(raw json.RawMessage) (tagWrapper, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return tagWrapper{}, false
	}
	if _, ok := probe["value"]; !ok {
		return tagWrapper{}, false
	}
	var w tagWrapper
	if err := json.Unmarshal(raw, &w); err != nil {
		return tagWrapper{}, false
	}
	return w, true
}

func parseWrappedTag(name string, w tagWrapper) (SidecarTag, bool, error) {
	declared, ok := sidecarTypes[strings.ToLower(w.Type)]
	if !ok && w.Type != "" {
		return SidecarTag{}, false, fmt.Errorf("unknown sidecar type %q", w.Type)
	}

	value, isList := unwrapValue(w.Value)
	if isEmpty(value) {
		return SidecarTag{}, false, nil
	}

	if w.Type == "" {
		// No declared type, fall back to inference on the raw value
		return parseBareTag(name, w.Value)
	}

	t := declared
	if isList {
		if lt, ok := database.ListOf(declared); ok {
			t = lt
		}
	}

	value, err := parseTemporal(t, value, w.Format)
	if err != nil {
		return SidecarTag{}, false, err
	}

	value = normalizeSpecial(name, value)
	return SidecarTag{
		Name:        name,
		Type:        t,
		Description: w.Description,
		Unit:        w.Units,
		Value:       value,
	}, true, nil
}

func parseBareTag(name string, value any) (SidecarTag, bool, error) {
	value, _ = unwrapValue(value)
	if isEmpty(value) {
		return SidecarTag{}, false, nil
	}

	t, coerced, ok := inferType(value)
	if !ok {
		return SidecarTag{}, false, fmt.Errorf("cannot infer type of %T", value)
	}

	coerced = normalizeSpecial(name, coerced)
	return SidecarTag{Name: name, Type: t, Value: coerced}, true, nil
}

// unwrapValue collapses single-element value arrays to their element.
// The converter wraps every value in an array; only genuine multi
// element arrays stay lists.
func unwrapValue(v any) (any, bool) {
	list, ok := v.([]any)
	if !ok {
		return v, false
	}
	if len(list) == 1 {
		// A nested array is a genuine list value, whatever its length
		if inner, isInnerList := list[0].([]any); isInnerList {
			return inner, true
		}
		return list[0], false
	}
	return list, true
}

// isEmpty reports whether a sidecar value should be treated as unset
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	}
	return false
}

// parseTemporal turns display-formatted strings into time values for
// the temporal field types, using the sidecar's format when given.
func parseTemporal(t database.FieldType, value any, format string) (any, error) {
	elem := t.Elem()
	switch elem {
	case database.FieldTypeDate, database.FieldTypeDatetime, database.FieldTypeTime:
	default:
		return value, nil
	}

	parse := func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		if format != "" {
			tv, err := time.Parse(displayLayout(format), s)
			if err == nil {
				return tv, nil
			}
		}
		// Canonical layouts as a fallback
		tv, err := database.Coerce(elem, s)
		if err != nil {
			return nil, fmt.Errorf("unparseable %s value %q", elem, s)
		}
		return tv, nil
	}

	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, e := range list {
			parsed, err := parse(e)
			if err != nil {
				return nil, err
			}
			out[i] = parsed
		}
		return out, nil
	}
	return parse(value)
}

// inferType derives a field type from a bare JSON value. JSON numbers
// arrive as float64; whole numbers become integers.
func inferType(v any) (database.FieldType, any, bool) {
	switch val := v.(type) {
	case string:
		return database.FieldTypeString, val, true
	case bool:
		return database.FieldTypeBoolean, val, true
	case float64:
		if val == float64(int64(val)) {
			return database.FieldTypeInteger, int64(val), true
		}
		return database.FieldTypeFloat, val, true
	case []any:
		if len(val) == 0 {
			return "", nil, false
		}
		elem, _, ok := inferType(val[0])
		if !ok {
			return "", nil, false
		}
		t, ok := database.ListOf(elem)
		if !ok {
			return "", nil, false
		}
		return t, val, true
	}
	return "", nil, false
}

// normalizeSpecial applies per-tag normalization rules. PatientName
// feeds filesystem paths downstream, so spaces are stripped and the
// text is NFC-normalized.
func normalizeSpecial(name string, value any) any {
	if name != "PatientName" {
		return value
	}
	s, ok := value.(string)
	if !ok {
		if list, isList := value.([]any); isList && len(list) > 0 {
			if first, ok := list[0].(string); ok {
				list[0] = normalizePatientName(first)
			}
		}
		return value
	}
	return normalizePatientName(s)
}

func normalizePatientName(s string) string {
	return norm.NFC.String(strings.ReplaceAll(s, " ", ""))
}
