package database

import (
	"fmt"
	"reflect"
	"time"
)

// FieldType is the closed set of tag value types. Scalar types have a
// list variant holding any number of elements of the scalar type; the
// mapping type holds an arbitrary JSON object.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "int"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeTime     FieldType = "time"

	FieldTypeListString   FieldType = "list_string"
	FieldTypeListInteger  FieldType = "list_int"
	FieldTypeListFloat    FieldType = "list_float"
	FieldTypeListBoolean  FieldType = "list_boolean"
	FieldTypeListDate     FieldType = "list_date"
	FieldTypeListDatetime FieldType = "list_datetime"
	FieldTypeListTime     FieldType = "list_time"

	FieldTypeMapping FieldType = "mapping"
)

// Canonical layouts for temporal values as stored in the database.
// Parsing additionally accepts the fraction-less forms.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05.000000"
	TimeLayout     = "15:04:05.000000"
)

var listElem = map[FieldType]FieldType{
	FieldTypeListString:   FieldTypeString,
	FieldTypeListInteger:  FieldTypeInteger,
	FieldTypeListFloat:    FieldTypeFloat,
	FieldTypeListBoolean:  FieldTypeBoolean,
	FieldTypeListDate:     FieldTypeDate,
	FieldTypeListDatetime: FieldTypeDatetime,
	FieldTypeListTime:     FieldTypeTime,
}

var scalarList = map[FieldType]FieldType{
	FieldTypeString:   FieldTypeListString,
	FieldTypeInteger:  FieldTypeListInteger,
	FieldTypeFloat:    FieldTypeListFloat,
	FieldTypeBoolean:  FieldTypeListBoolean,
	FieldTypeDate:     FieldTypeListDate,
	FieldTypeDatetime: FieldTypeListDatetime,
	FieldTypeTime:     FieldTypeListTime,
}

// Valid reports whether t is a member of the closed type set
func (t FieldType) Valid() bool {
	if t == FieldTypeMapping {
		return true
	}
	if _, ok := listElem[t]; ok {
		return true
	}
	_, ok := scalarList[t]
	return ok
}

// IsList reports whether t is a list variant
func (t FieldType) IsList() bool {
	_, ok := listElem[t]
	return ok
}

// Elem returns the scalar type of a list variant, or t itself otherwise
func (t FieldType) Elem() FieldType {
	if e, ok := listElem[t]; ok {
		return e
	}
	return t
}

// ListOf returns the list variant of a scalar type
func ListOf(t FieldType) (FieldType, bool) {
	l, ok := scalarList[t]
	return l, ok
}

// notDefined is the distinguished "unset" value. It is distinct from
// every real value including the empty string and zero, and is accepted
// by every field regardless of its declared type.
type notDefined struct{}

func (notDefined) String() string { return "*Not Defined*" }

// NotDefined is the sentinel returned for unset fields
var NotDefined = notDefined{}

// Coerce converts a raw value (a Go literal or a decoded JSON value)
// into the canonical in-memory representation for the field type:
// string, int64, float64, bool, time.Time, []any of those, or
// map[string]any for mappings. Returns ErrTypeMismatch when the value
// cannot be represented in the declared type.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil value for type %s", ErrTypeMismatch, t)
	}
	if _, ok := v.(notDefined); ok {
		return NotDefined, nil
	}
	if t == FieldTypeMapping {
		return coerceMapping(v)
	}
	if t.IsList() {
		return coerceList(t.Elem(), v)
	}
	return coerceScalar(t, v)
}

// Serialize converts a canonical value into its JSON-storable form.
// Temporal values become layout strings, everything else passes through.
func Serialize(t FieldType, v any) any {
	if _, ok := v.(notDefined); ok {
		return nil
	}
	if t.IsList() {
		list, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(list))
		for i, e := range list {
			out[i] = Serialize(t.Elem(), e)
		}
		return out
	}
	if tv, ok := v.(time.Time); ok {
		switch t {
		case FieldTypeDate:
			return tv.Format(DateLayout)
		case FieldTypeTime:
			return tv.Format(TimeLayout)
		default:
			return tv.Format(DatetimeLayout)
		}
	}
	return v
}

// Validate reports whether v is representable in the declared type
func Validate(t FieldType, v any) bool {
	if _, ok := v.(notDefined); ok {
		return true
	}
	_, err := Coerce(t, v)
	return err == nil
}

func coerceScalar(t FieldType, v any) (any, error) {
	switch t {
	case FieldTypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldTypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n == float64(int64(n)) {
				return int64(n), nil
			}
		case float32:
			if float64(n) == float64(int64(n)) {
				return int64(n), nil
			}
		}
	case FieldTypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case FieldTypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldTypeDate:
		return coerceTemporal(v, DateLayout)
	case FieldTypeDatetime:
		return coerceTemporal(v, DatetimeLayout, "2006-01-02 15:04:05", time.RFC3339)
	case FieldTypeTime:
		return coerceTemporal(v, TimeLayout, "15:04:05")
	}
	return nil, fmt.Errorf("%w: %T is not a valid %s", ErrTypeMismatch, v, t)
}

func coerceTemporal(v any, layouts ...string) (any, error) {
	if tv, ok := v.(time.Time); ok {
		return tv, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a temporal value", ErrTypeMismatch, v)
	}
	for _, layout := range layouts {
		if tv, err := time.Parse(layout, s); err == nil {
			return tv, nil
		}
	}
	return nil, fmt.Errorf("%w: %q does not match layout %s", ErrTypeMismatch, s, layouts[0])
}

func coerceList(elem FieldType, v any) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T is not a list", ErrTypeMismatch, v)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e, err := coerceScalar(elem, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func coerceMapping(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %T is not a mapping", ErrTypeMismatch, v)
}

// ValuesEqual compares two canonical values of the same declared type
func ValuesEqual(t FieldType, a, b any) bool {
	_, aUnset := a.(notDefined)
	_, bUnset := b.(notDefined)
	if aUnset || bUnset {
		return aUnset == bUnset
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if t.IsList() {
		la, aOK := a.([]any)
		lb, bOK := b.([]any)
		if !aOK || !bOK || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !ValuesEqual(t.Elem(), la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
