// Package compiler turns step condition strings into compiled predicates.
//
// The grammar is deliberately closed: comparisons, boolean connectives and
// field lookups into the variables the coordinator exposes (results,
// agents, context, errors, iteration). There is no function call syntax,
// no assignment and no access to anything outside the provided variable
// set, so conditions cannot execute arbitrary code.
package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aretw0/espalier/pkg/domain"
)

// Vars is the sandboxed variable set a condition evaluates against.
type Vars map[string]any

// Program is a compiled condition. Compile once, evaluate many times.
type Program struct {
	source string
	root   node
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.source }

// Eval runs the predicate against the given variables.
// The expression must yield a boolean.
func (p *Program) Eval(vars Vars) (bool, error) {
	v, err := p.root.eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q must evaluate to a boolean, got %T", p.source, v)
	}
	return b, nil
}

// Compile parses a condition expression into a Program.
func Compile(source string) (*Program, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return &Program{source: source, root: root}, nil
}

// -- Lexer --

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOp     // == != < <= > >= && || !
	tokLParen // (
	tokRParen // )
	tokLBracket
	tokRBracket
	tokDot
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++
		case c == '.':
			toks = append(toks, token{tokDot, ".", i})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at position %d", i)
			}
			toks = append(toks, token{tokString, src[i+1 : j], i})
			i = j + 1
		case strings.ContainsRune("=!<>&|", rune(c)):
			op, width, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokOp, op, i})
			i += width
		case unicode.IsDigit(rune(c)):
			j := i
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func lexOperator(src string, i int) (string, int, error) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		return two, 2, nil
	}
	switch src[i] {
	case '<', '>', '!':
		return string(src[i]), 1, nil
	}
	return "", 0, fmt.Errorf("invalid operator at position %d", i)
}

// -- Parser --

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }
func (p *parser) next() token { t := p.tokens[p.pos]; p.pos++; return t }
func (p *parser) atEnd() bool { return p.peek().kind == tokEOF }

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("||"); !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.acceptOp("&&"); !ok {
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
}

func (p *parser) parseNot() (node, error) {
	if _, ok := p.acceptOp("!"); ok {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", "<", "<=", ">", ">=")
	if !ok {
		return left, nil
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", p.peek().pos)
		}
		p.next()
		return inner, nil

	case tokString:
		p.next()
		return &literalNode{value: t.text}, nil

	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return &literalNode{value: f}, nil

	case tokIdent:
		// Keyword literals first; accepts Python-style spellings so
		// conditions written as results['a']['success'] == True work.
		switch strings.ToLower(t.text) {
		case "true":
			p.next()
			return &literalNode{value: true}, nil
		case "false":
			p.next()
			return &literalNode{value: false}, nil
		case "null", "none", "nil":
			p.next()
			return &literalNode{value: nil}, nil
		}
		return p.parsePath()

	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

func (p *parser) parsePath() (node, error) {
	root := p.next() // ident
	path := &pathNode{root: root.text}

	for {
		switch p.peek().kind {
		case tokDot:
			p.next()
			if p.peek().kind != tokIdent {
				return nil, fmt.Errorf("expected field name at position %d", p.peek().pos)
			}
			path.keys = append(path.keys, p.next().text)
		case tokLBracket:
			p.next()
			if p.peek().kind != tokString {
				return nil, fmt.Errorf("expected string key at position %d", p.peek().pos)
			}
			path.keys = append(path.keys, p.next().text)
			if p.peek().kind != tokRBracket {
				return nil, fmt.Errorf("expected ']' at position %d", p.peek().pos)
			}
			p.next()
		default:
			return path, nil
		}
	}
}

// -- Evaluation --

type node interface {
	eval(vars Vars) (any, error)
}

type literalNode struct {
	value any
}

func (n *literalNode) eval(Vars) (any, error) { return n.value, nil }

type notNode struct {
	inner node
}

func (n *notNode) eval(vars Vars) (any, error) {
	v, err := n.inner.eval(vars)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("operator ! requires a boolean, got %T", v)
	}
	return !b, nil
}

type binaryNode struct {
	op    string
	left  node
	right node
}

func (n *binaryNode) eval(vars Vars) (any, error) {
	lv, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}

	// Short-circuit boolean connectives.
	if n.op == "&&" || n.op == "||" {
		lb, ok := lv.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s requires booleans, got %T", n.op, lv)
		}
		if n.op == "&&" && !lb {
			return false, nil
		}
		if n.op == "||" && lb {
			return true, nil
		}
		rv, err := n.right.eval(vars)
		if err != nil {
			return nil, err
		}
		rb, ok := rv.(bool)
		if !ok {
			return nil, fmt.Errorf("operator %s requires booleans, got %T", n.op, rv)
		}
		return rb, nil
	}

	rv, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}
	return compare(n.op, lv, rv)
}

type pathNode struct {
	root string
	keys []string
}

func (n *pathNode) eval(vars Vars) (any, error) {
	current, ok := vars[n.root]
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", n.root)
	}

	for _, key := range n.keys {
		current = lookup(current, key)
		if current == nil {
			// Missing keys resolve to nil rather than failing the step;
			// comparisons against nil then decide the outcome.
			return nil, nil
		}
	}
	return normalize(current), nil
}

func lookup(v any, key string) any {
	switch m := v.(type) {
	case map[string]any:
		return m[key]
	case map[string]domain.StepResult:
		if sr, ok := m[key]; ok {
			return sr
		}
		return nil
	case domain.StepResult:
		switch key {
		case "success":
			return m.Success
		case "result":
			return m.Result
		case "timestamp":
			return m.Timestamp
		}
		return nil
	default:
		return nil
	}
}

// normalize widens numeric values so comparisons work across int/float.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func compare(op string, l, r any) (any, error) {
	l, r = normalize(l), normalize(r)

	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	}

	// Ordering requires two numbers or two strings.
	if lf, ok := l.(float64); ok {
		rf, ok := r.(float64)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %T", r)
		}
		return orderResult(op, lf < rf, lf == rf), nil
	}
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("cannot compare string with %T", r)
		}
		return orderResult(op, ls < rs, ls == rs), nil
	}
	return nil, fmt.Errorf("operator %s not supported for %T", op, l)
}

func equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	return l == r
}

func orderResult(op string, less, eq bool) bool {
	switch op {
	case "<":
		return less
	case "<=":
		return less || eq
	case ">":
		return !less && !eq
	case ">=":
		return !less
	}
	return false
}
