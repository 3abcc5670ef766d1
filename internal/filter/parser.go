package filter

import (
	"strings"
)

type tokenKind int

const (
	tokField tokenKind = iota
	tokOperator
	tokValue
	tokNull
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

// tokenize breaks a filter expression into tokens while preserving
// braced field names and quoted values
func tokenize(query string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(query) {
		ch := query[i]

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++

		case ch == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++

		case ch == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++

		case ch == '{':
			end := strings.IndexByte(query[i:], '}')
			if end < 0 {
				return nil, &SyntaxError{Query: query, Offending: query[i:], Reason: "unterminated field name"}
			}
			tokens = append(tokens, token{tokField, query[i+1 : i+end]})
			i += end + 1

		case ch == '"':
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				return nil, &SyntaxError{Query: query, Offending: query[i:], Reason: "unterminated value"}
			}
			tokens = append(tokens, token{tokValue, query[i+1 : i+1+end]})
			i += end + 2

		default:
			start := i
			for i < len(query) && !strings.ContainsRune(" \t\n\r(){}\"", rune(query[i])) {
				i++
			}
			word := query[start:i]
			switch {
			case strings.EqualFold(word, "AND"):
				tokens = append(tokens, token{tokAnd, "AND"})
			case strings.EqualFold(word, "OR"):
				tokens = append(tokens, token{tokOr, "OR"})
			case strings.EqualFold(word, "null"):
				tokens = append(tokens, token{tokNull, "null"})
			case Operator(strings.ToUpper(word)).Valid():
				tokens = append(tokens, token{tokOperator, strings.ToUpper(word)})
			default:
				return nil, &SyntaxError{Query: query, Offending: word, Reason: "unexpected token"}
			}
		}
	}
	return tokens, nil
}

// Parse parses a filter expression into a Node tree. An empty query
// yields a nil Node, which matches every document.
func Parse(query string) (Node, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}

	node, pos, err := parseExpr(query, tokens, 0)
	if err != nil {
		return nil, err
	}
	if pos < len(tokens) {
		return nil, &SyntaxError{Query: query, Offending: tokens[pos].text, Reason: "unexpected trailing input"}
	}
	return node, nil
}

// parseExpr parses a sequence of clauses/groups joined by AND/OR.
// Combinators bind left-to-right with equal precedence; parentheses
// group explicitly.
func parseExpr(query string, tokens []token, pos int) (Node, int, error) {
	group := Group{}

	for {
		node, next, err := parseOperand(query, tokens, pos)
		if err != nil {
			return nil, pos, err
		}
		group.Nodes = append(group.Nodes, node)
		pos = next

		if pos >= len(tokens) || (tokens[pos].kind != tokAnd && tokens[pos].kind != tokOr) {
			break
		}
		group.Combinators = append(group.Combinators, tokens[pos].text)
		pos++
	}

	if len(group.Nodes) == 1 {
		return group.Nodes[0], pos, nil
	}
	return group, pos, nil
}

// parseOperand parses one clause or one parenthesized subexpression
func parseOperand(query string, tokens []token, pos int) (Node, int, error) {
	if pos >= len(tokens) {
		return nil, pos, &SyntaxError{Query: query, Reason: "unexpected end of filter"}
	}

	if tokens[pos].kind == tokLParen {
		node, next, err := parseExpr(query, tokens, pos+1)
		if err != nil {
			return nil, pos, err
		}
		if next >= len(tokens) || tokens[next].kind != tokRParen {
			return nil, pos, &SyntaxError{Query: query, Offending: tokens[pos].text, Reason: "unbalanced parentheses"}
		}
		return node, next + 1, nil
	}

	// Clause: {field} operator "value" | null
	if tokens[pos].kind != tokField {
		return nil, pos, &SyntaxError{Query: query, Offending: tokens[pos].text, Reason: "expected field name"}
	}
	if pos+2 >= len(tokens) {
		return nil, pos, &SyntaxError{Query: query, Offending: tokens[pos].text, Reason: "incomplete clause"}
	}
	if tokens[pos+1].kind != tokOperator {
		return nil, pos, &SyntaxError{Query: query, Offending: tokens[pos+1].text, Reason: "expected operator"}
	}

	clause := Clause{
		Field: tokens[pos].text,
		Op:    Operator(tokens[pos+1].text),
	}
	switch tokens[pos+2].kind {
	case tokValue:
		clause.Value = tokens[pos+2].text
	case tokNull:
		clause.Value = nil
	default:
		return nil, pos, &SyntaxError{Query: query, Offending: tokens[pos+2].text, Reason: "expected quoted value or null"}
	}

	return clause, pos + 3, nil
}
