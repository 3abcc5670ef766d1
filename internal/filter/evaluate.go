package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/clemv/mritrack/internal/database"
)

// Evaluate parses the query and returns the documents of the collection
// matching it, in primary-key order (callers needing another order must
// sort). An empty query matches every document.
func Evaluate(s *database.Session, collection, query string) ([]database.Document, error) {
	exists, err := s.HasCollection(collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownCollection, collection)
	}

	node, err := Parse(query)
	if err != nil {
		return nil, err
	}

	fields, err := s.Fields(collection)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]database.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	docs, err := s.Documents(collection)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return docs, nil
	}

	var matched []database.Document
	for _, doc := range docs {
		if matches(node, &doc, byName) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// RapidSearch returns the documents whose name or any visible field
// value contains the keyword (case-insensitive). The literal
// "*Not Defined*" keyword instead matches documents with at least one
// visible field unset.
func RapidSearch(s *database.Session, collection, keyword string) ([]database.Document, error) {
	exists, err := s.HasCollection(collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", database.ErrUnknownCollection, collection)
	}

	fields, err := s.Fields(collection)
	if err != nil {
		return nil, err
	}
	docs, err := s.Documents(collection)
	if err != nil {
		return nil, err
	}

	wantUnset := keyword == database.NotDefined.String()
	needle := strings.ToLower(keyword)

	var matched []database.Document
	for _, doc := range docs {
		if wantUnset {
			for _, f := range fields {
				if !f.Visibility {
					continue
				}
				if doc.Get(f.Name) == database.NotDefined {
					matched = append(matched, doc)
					break
				}
			}
			continue
		}

		if strings.Contains(strings.ToLower(doc.Name), needle) {
			matched = append(matched, doc)
			continue
		}
		for _, f := range fields {
			if !f.Visibility {
				continue
			}
			v := doc.Get(f.Name)
			if v == database.NotDefined {
				continue
			}
			if strings.Contains(strings.ToLower(displayString(f.Type, v)), needle) {
				matched = append(matched, doc)
				break
			}
		}
	}
	return matched, nil
}

func matches(n Node, doc *database.Document, fields map[string]database.Field) bool {
	switch node := n.(type) {
	case Clause:
		return clauseMatches(node, doc, fields)
	case Group:
		result := matches(node.Nodes[0], doc, fields)
		for i, comb := range node.Combinators {
			next := matches(node.Nodes[i+1], doc, fields)
			if strings.EqualFold(comb, "OR") {
				result = result || next
			} else {
				result = result && next
			}
		}
		return result
	}
	return false
}

func clauseMatches(c Clause, doc *database.Document, fields map[string]database.Field) bool {
	if c.Field == AllFields {
		for _, f := range fields {
			if !f.Visibility {
				continue
			}
			scoped := c
			scoped.Field = f.Name
			if clauseMatches(scoped, doc, fields) {
				return true
			}
		}
		return false
	}

	f, declared := fields[c.Field]
	if !declared {
		return false
	}
	value := doc.Get(c.Field)

	// The null literal makes the not-defined sentinel comparable
	if c.Value == nil {
		switch c.Op {
		case OpEqual:
			return value == database.NotDefined
		case OpNotEqual:
			return value != database.NotDefined
		}
		return false
	}

	literal := c.Value.(string)
	if value == database.NotDefined {
		// An unset field differs from every real value
		return c.Op == OpNotEqual
	}

	switch c.Op {
	case OpLike:
		return likeMatch(literal, value, f.Type, false)
	case OpILike:
		return likeMatch(literal, value, f.Type, true)
	case OpIn:
		return inMatch(literal, value, f.Type)
	case OpEqual, OpNotEqual:
		eq := equalMatch(literal, value, f.Type)
		if c.Op == OpNotEqual {
			return !eq
		}
		return eq
	default:
		return orderMatch(c.Op, literal, value, f.Type)
	}
}

// equalMatch compares a document value with a literal, coercing the
// literal to the declared type. Single-element lists compare by their
// element; longer lists compare by their serialized display form.
func equalMatch(literal string, value any, t database.FieldType) bool {
	if t.IsList() {
		list, ok := value.([]any)
		if !ok {
			return false
		}
		if len(list) == 1 {
			return scalarEqual(literal, list[0], t.Elem())
		}
		return displayString(t, value) == literal
	}
	return scalarEqual(literal, value, t)
}

// inMatch checks list membership: any element of a list field may
// satisfy the clause; scalar fields degrade to equality.
func inMatch(literal string, value any, t database.FieldType) bool {
	if t.IsList() {
		list, ok := value.([]any)
		if !ok {
			return false
		}
		for _, e := range list {
			if scalarEqual(literal, e, t.Elem()) {
				return true
			}
		}
		return false
	}
	return scalarEqual(literal, value, t)
}

func scalarEqual(literal string, value any, elem database.FieldType) bool {
	coerced, err := database.Coerce(elem, literal)
	if err == nil && database.ValuesEqual(elem, coerced, value) {
		return true
	}
	// Fall back to the displayed form, so "50000" matches 50000.0
	return displayString(elem, value) == literal
}

// orderMatch handles <, <=, >, >=. Ordering a list field compares its
// first element when the list has exactly one element, and is false
// otherwise.
func orderMatch(op Operator, literal string, value any, t database.FieldType) bool {
	elem := t.Elem()
	if t.IsList() {
		list, ok := value.([]any)
		if !ok || len(list) != 1 {
			return false
		}
		value = list[0]
	}

	cmp, ok := compare(elem, value, literal)
	if !ok {
		return false
	}
	switch op {
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	}
	return false
}

// compare orders a canonical value against a literal of the same
// declared type; returns ok=false when the pair is not orderable.
func compare(elem database.FieldType, value any, literal string) (int, bool) {
	switch elem {
	case database.FieldTypeInteger, database.FieldTypeFloat:
		var a float64
		switch n := value.(type) {
		case int64:
			a = float64(n)
		case float64:
			a = n
		default:
			return 0, false
		}
		b, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return 0, false
		}
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		}
		return 0, true

	case database.FieldTypeDate, database.FieldTypeDatetime, database.FieldTypeTime:
		a, ok := value.(time.Time)
		if !ok {
			return 0, false
		}
		coerced, err := database.Coerce(elem, literal)
		if err != nil {
			return 0, false
		}
		b := coerced.(time.Time)
		switch {
		case a.Before(b):
			return -1, true
		case a.After(b):
			return 1, true
		}
		return 0, true

	case database.FieldTypeString:
		a, ok := value.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(a, literal), true
	}
	return 0, false
}

// likeMatch implements SQL-style pattern matching with % and _
// wildcards; list fields match when any element matches.
func likeMatch(pattern string, value any, t database.FieldType, caseInsensitive bool) bool {
	re, err := likeRegexp(pattern, caseInsensitive)
	if err != nil {
		return false
	}
	if t.IsList() {
		list, ok := value.([]any)
		if !ok {
			return false
		}
		for _, e := range list {
			if re.MatchString(displayString(t.Elem(), e)) {
				return true
			}
		}
		return false
	}
	return re.MatchString(displayString(t, value))
}

func likeRegexp(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if caseInsensitive {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// displayString renders a canonical value the way the browser shows it
func displayString(t database.FieldType, v any) string {
	if v == database.NotDefined {
		return database.NotDefined.String()
	}
	if t.IsList() {
		list, ok := v.([]any)
		if !ok {
			return fmt.Sprint(v)
		}
		parts := make([]string, len(list))
		for i, e := range list {
			parts[i] = displayString(t.Elem(), e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	switch val := v.(type) {
	case time.Time:
		switch t {
		case database.FieldTypeDate:
			return val.Format(database.DateLayout)
		case database.FieldTypeTime:
			return val.Format(database.TimeLayout)
		default:
			return val.Format(database.DatetimeLayout)
		}
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]any:
		buf, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(buf)
	default:
		return fmt.Sprint(val)
	}
}

// DisplayString renders a canonical value for tabular output
func DisplayString(t database.FieldType, v any) string {
	return displayString(t, v)
}
