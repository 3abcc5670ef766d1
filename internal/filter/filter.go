// Package filter parses and evaluates the textual tag filter language:
// brace-delimited field names, double-quoted values, AND/OR combinators
// and parenthesized groups, e.g.
//
//	(({BandWidth} == "50000")) AND (({FileName} LIKE "%G1%"))
//
// Evaluation happens in memory against the documents of one collection,
// with literals coerced to each field's declared type.
package filter

import (
	"fmt"
	"strings"
)

// Operator is a comparison operator of the filter language
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpIn           Operator = "IN"
	OpLike         Operator = "LIKE"
	OpILike        Operator = "ILIKE"
)

// Valid reports whether op is a supported operator
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLessEqual, OpGreaterEqual, OpLess, OpGreater,
		OpIn, OpLike, OpILike:
		return true
	}
	return false
}

// AllFields is the pseudo-field matching any visible field, used by the
// rapid search ({All}).
const AllFields = "All"

// Node is a parsed filter expression: either a Clause or a Group
type Node interface {
	String() string
}

// Clause is a single `{field} operator "value"` condition. A nil Value
// is the null literal, matching the not-defined sentinel.
type Clause struct {
	Field string
	Op    Operator
	Value any
}

func (c Clause) String() string {
	if c.Value == nil {
		return fmt.Sprintf("{%s} %s null", c.Field, c.Op)
	}
	return fmt.Sprintf("{%s} %s %q", c.Field, c.Op, fmt.Sprint(c.Value))
}

// Group is a parenthesized sequence of nodes joined left-to-right by
// AND/OR combinators; Combinators[i] joins Nodes[i] and Nodes[i+1].
type Group struct {
	Nodes       []Node
	Combinators []string
}

func (g Group) String() string {
	var b strings.Builder
	b.WriteString("(")
	for i, n := range g.Nodes {
		if i > 0 {
			b.WriteString(" " + g.Combinators[i-1] + " ")
		}
		b.WriteString(n.String())
	}
	b.WriteString(")")
	return b.String()
}

// Build composes a syntactically valid filter string from structured
// clause rows, all joined by one combinator ("AND" or "OR"). The result
// parses back into the same clauses.
func Build(clauses []Clause, combinator string) string {
	if len(clauses) == 0 {
		return ""
	}
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = "(" + c.String() + ")"
	}
	return "(" + strings.Join(parts, " "+combinator+" ") + ")"
}

// SyntaxError reports a malformed filter expression, carrying the
// offending substring for the caller's error message.
type SyntaxError struct {
	Query     string
	Offending string
	Reason    string
}

func (e *SyntaxError) Error() string {
	if e.Offending == "" {
		return fmt.Sprintf("filter syntax error: %s", e.Reason)
	}
	return fmt.Sprintf("filter syntax error: %s near %q", e.Reason, e.Offending)
}
