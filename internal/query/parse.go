package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SyntaxError reports a query the parser does not accept.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Pos, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokParam
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c, width := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(c):
			i += width
		case c == '.':
			tokens = append(tokens, token{tokDot, ".", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == '?':
			tokens = append(tokens, token{tokParam, "?", i})
			i++
		case c == '=':
			tokens = append(tokens, token{tokOp, "=", i})
			i++
		case c == '<' || c == '>' || c == '!':
			start := i
			i++
			if i < len(input) && (input[i] == '=' || (c == '<' && input[i] == '>')) {
				i++
			}
			op := input[start:i]
			if op == "!" {
				return nil, &SyntaxError{Pos: start, Msg: "unexpected '!'"}
			}
			tokens = append(tokens, token{tokOp, op, start})
		case c == '\'':
			start := i
			i++
			var b strings.Builder
			closed := false
			for i < len(input) {
				if input[i] == '\'' {
					if i+1 < len(input) && input[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(input[i])
				i++
			}
			if !closed {
				return nil, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
			}
			tokens = append(tokens, token{tokString, b.String(), start})
		case c == '-' || isASCIIDigit(input[i]):
			start := i
			i++
			for i < len(input) && (isASCIIDigit(input[i]) || input[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, input[start:i], start})
		case c == '_' || unicode.IsLetter(c):
			start := i
			for i < len(input) {
				r, w := utf8.DecodeRuneInString(input[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += w
			}
			tokens = append(tokens, token{tokIdent, input[start:i], start})
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	tokens = append(tokens, token{tokEOF, "", len(input)})
	return tokens, nil
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }

type parser struct {
	tokens []token
	pos    int
	args   []any
	argPos int
}

// Parse reads a query of the form
//
//	SELECT a[.assoc...] FROM Entity [AS] a
//	  [WHERE a[.assoc...].col OP value [AND ...]]
//	  [ORDER BY a[.assoc...].col [ASC|DESC], ...]
//
// where OP is one of = <> != < <= > >=, IS [NOT] NULL or IN (...). Values are
// numeric or quoted string literals, TRUE/FALSE, or ? bound positionally from args.
func Parse(input string, args ...any) (*Descriptor, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, args: args}
	d, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.argPos != len(args) {
		return nil, &SyntaxError{Pos: len(input), Msg: fmt.Sprintf("query has %d parameters but %d arguments were given", p.argPos, len(args))}
	}
	return d, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectKeyword(keyword string) error {
	t := p.next()
	if !t.is(keyword) {
		return p.fail(t, "expected %s, found %q", keyword, t.text)
	}
	return nil
}

func (p *parser) expectIdent(what string) (token, error) {
	t := p.next()
	if t.kind != tokIdent || isReserved(t.text) {
		return t, p.fail(t, "expected %s, found %q", what, t.text)
	}
	return t, nil
}

func (p *parser) parseQuery() (*Descriptor, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	selectTok := p.peek()
	selectPath, err := p.parseDotted()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	root, err := p.expectIdent("entity name")
	if err != nil {
		return nil, err
	}
	if p.peek().is("AS") {
		p.next()
	}
	alias, err := p.expectIdent("identification variable")
	if err != nil {
		return nil, err
	}
	if selectPath[0] != alias.text {
		return nil, p.fail(selectTok, "select item %q does not use identification variable %q", strings.Join(selectPath, "."), alias.text)
	}

	d := &Descriptor{Root: root.text, Alias: alias.text, Path: selectPath[1:]}

	if p.peek().is("WHERE") {
		p.next()
		for {
			pred, err := p.parseCondition(alias.text)
			if err != nil {
				return nil, err
			}
			d.Predicates = append(d.Predicates, pred)
			t := p.peek()
			if t.is("AND") {
				p.next()
				continue
			}
			if t.is("OR") {
				return nil, p.fail(t, "OR is not supported")
			}
			break
		}
	}

	if p.peek().is("ORDER") {
		p.next()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			orderTok := p.peek()
			path, err := p.parseDotted()
			if err != nil {
				return nil, err
			}
			if path[0] != alias.text || len(path) < 2 {
				return nil, p.fail(orderTok, "ORDER BY term must be %s.<attribute>", alias.text)
			}
			o := Order{Path: path[1 : len(path)-1], Column: path[len(path)-1]}
			if t := p.peek(); t.is("ASC") || t.is("DESC") {
				o.Desc = t.is("DESC")
				p.next()
			}
			d.OrderBy = append(d.OrderBy, o)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.fail(t, "unexpected %q", t.text)
	}
	return d, nil
}

func (p *parser) parseDotted() ([]string, error) {
	first, err := p.expectIdent("identifier")
	if err != nil {
		return nil, err
	}
	parts := []string{first.text}
	for p.peek().kind == tokDot {
		p.next()
		t, err := p.expectIdent("attribute name")
		if err != nil {
			return nil, err
		}
		parts = append(parts, t.text)
	}
	return parts, nil
}

func (p *parser) parseCondition(alias string) (Predicate, error) {
	start := p.peek()
	path, err := p.parseDotted()
	if err != nil {
		return Predicate{}, err
	}
	if path[0] != alias || len(path) < 2 {
		return Predicate{}, p.fail(start, "condition must reference %s.<attribute>", alias)
	}
	pred := Predicate{Path: path[1 : len(path)-1], Column: path[len(path)-1]}

	t := p.next()
	switch {
	case t.kind == tokOp:
		pred.Op = Operator(t.text)
		if t.text == "!=" {
			pred.Op = OpNotEq
		}
		v, err := p.parseValue()
		if err != nil {
			return Predicate{}, err
		}
		pred.Values = []any{v}
	case t.is("IS"):
		pred.Op = OpIsNull
		if p.peek().is("NOT") {
			p.next()
			pred.Op = OpIsNotNull
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return Predicate{}, err
		}
	case t.is("IN"):
		pred.Op = OpIn
		if lp := p.next(); lp.kind != tokLParen {
			return Predicate{}, p.fail(lp, "expected '(' after IN")
		}
		for {
			v, err := p.parseValue()
			if err != nil {
				return Predicate{}, err
			}
			pred.Values = append(pred.Values, v)
			sep := p.next()
			if sep.kind == tokRParen {
				break
			}
			if sep.kind != tokComma {
				return Predicate{}, p.fail(sep, "expected ',' or ')' in IN list")
			}
		}
	default:
		return Predicate{}, p.fail(t, "expected comparison operator, found %q", t.text)
	}
	return pred, nil
}

func (p *parser) parseValue() (any, error) {
	t := p.next()
	switch t.kind {
	case tokParam:
		if p.argPos >= len(p.args) {
			return nil, p.fail(t, "missing argument for parameter %d", p.argPos+1)
		}
		v := p.args[p.argPos]
		p.argPos++
		return v, nil
	case tokString:
		return t.text, nil
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, p.fail(t, "invalid number %q", t.text)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.fail(t, "invalid number %q", t.text)
		}
		return n, nil
	case tokIdent:
		switch {
		case t.is("TRUE"):
			return true, nil
		case t.is("FALSE"):
			return false, nil
		}
	}
	return nil, p.fail(t, "expected a value, found %q", t.text)
}

var reservedWords = map[string]struct{}{
	"SELECT": {}, "FROM": {}, "WHERE": {}, "AND": {}, "OR": {}, "NOT": {},
	"IS": {}, "NULL": {}, "IN": {}, "ORDER": {}, "BY": {}, "ASC": {}, "DESC": {}, "AS": {},
}

func isReserved(word string) bool {
	_, ok := reservedWords[strings.ToUpper(word)]
	return ok
}
