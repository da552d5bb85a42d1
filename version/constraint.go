package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Constraint is a parsed constraint expression. It is evaluated, never
// resolved to a concrete version.
type Constraint struct {
	expr  string
	match predicate
}

type predicate func(Version) bool

// ParseConstraint parses a constraint expression.
func ParseConstraint(expr string) (Constraint, error) {
	toks, err := lex(expr)
	if err != nil {
		return Constraint{}, fmt.Errorf("%w %q: %w", ErrInvalidConstraint, expr, err)
	}
	if len(toks) == 1 {
		return Constraint{}, fmt.Errorf("%w: empty expression", ErrInvalidConstraint)
	}
	p := &parser{toks: toks}
	match, err := p.expr()
	if err == nil && p.peek().kind != tokEOF {
		err = fmt.Errorf("unexpected %q", p.peek().text)
	}
	if err != nil {
		return Constraint{}, fmt.Errorf("%w %q: %w", ErrInvalidConstraint, expr, err)
	}
	return Constraint{expr: expr, match: match}, nil
}

// Check reports whether v satisfies the constraint.
func (c Constraint) Check(v Version) bool {
	if c.match == nil {
		return false
	}
	return c.match(v)
}

// String returns the expression as written.
func (c Constraint) String() string { return c.expr }

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokVersion
	tokCompare
	tokTilde
	tokCaret
	tokNot
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokHyphen
)

type token struct {
	kind tokenKind
	text string
}

func lex(expr string) ([]token, error) {
	var toks []token
	for i := 0; i < len(expr); {
		ch := expr[i]
		two := ""
		if i+1 < len(expr) {
			two = expr[i : i+2]
		}
		switch {
		case ch == ' ' || ch == '\t':
			i++
		case two == ">=" || two == "<=" || two == "!=" || two == "==":
			toks = append(toks, token{tokCompare, two})
			i += 2
		case ch == '>' || ch == '<' || ch == '=':
			toks = append(toks, token{tokCompare, string(ch)})
			i++
		case two == "&&" || two == "||":
			kind := tokAnd
			if ch == '|' {
				kind = tokOr
			}
			toks = append(toks, token{kind, two})
			i += 2
		case ch == '&' || ch == ',':
			toks = append(toks, token{tokAnd, string(ch)})
			i++
		case ch == '|':
			toks = append(toks, token{tokOr, "|"})
			i++
		case ch == '~':
			toks = append(toks, token{tokTilde, "~"})
			i++
		case ch == '^':
			toks = append(toks, token{tokCaret, "^"})
			i++
		case ch == '!':
			toks = append(toks, token{tokNot, "!"})
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case ch == '-':
			toks = append(toks, token{tokHyphen, "-"})
			i++
		case isVersionStart(ch):
			j := i + 1
			for j < len(expr) && isVersionChar(expr[j]) {
				j++
			}
			toks = append(toks, token{tokVersion, expr[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", ch)
		}
	}
	return append(toks, token{kind: tokEOF}), nil
}

func isVersionStart(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch == '*' || ch == 'x' || ch == 'X'
}

func isVersionChar(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
		ch == '.' || ch == '*' || ch == '-' || ch == '+'
}

// parser is a recursive-descent parser. Precedence from loosest to
// tightest: "|", "&" (also "," or plain juxtaposition), "!".
type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expr() (predicate, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = or(left, right)
	}
	return left, nil
}

func (p *parser) term() (predicate, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokAnd:
			p.next()
		case tokNot, tokLParen, tokCompare, tokTilde, tokCaret, tokVersion:
		default:
			return left, nil
		}
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = and(left, right)
	}
}

func (p *parser) factor() (predicate, error) {
	switch t := p.next(); t.kind {
	case tokNot:
		inner, err := p.factor()
		if err != nil {
			return nil, err
		}
		return func(v Version) bool { return !inner(v) }, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing %q", ")")
		}
		return inner, nil
	case tokCompare:
		b, err := p.bound()
		if err != nil {
			return nil, err
		}
		return compare(t.text, b), nil
	case tokTilde:
		b, err := p.bound()
		if err != nil {
			return nil, err
		}
		return tilde(b), nil
	case tokCaret:
		b, err := p.bound()
		if err != nil {
			return nil, err
		}
		return caret(b), nil
	case tokVersion:
		lo, err := parsePartial(t.text)
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokHyphen {
			return compare("=", lo), nil
		}
		p.next()
		hi, err := p.bound()
		if err != nil {
			return nil, err
		}
		return and(atLeast(lo.floor()), compare("<=", hi)), nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q", t.text)
	}
}

func (p *parser) bound() (partial, error) {
	t := p.next()
	if t.kind != tokVersion {
		return partial{}, fmt.Errorf("expected version, got %q", t.text)
	}
	return parsePartial(t.text)
}

// partial is a version that may omit trailing components, like "1", "1.2"
// or "1.2.x". parts counts the numeric components given.
type partial struct {
	nums  [3]uint64
	parts int
	pre   string
}

func parsePartial(s string) (partial, error) {
	var p partial
	core, _, _ := strings.Cut(s, "+")
	core, p.pre, _ = strings.Cut(core, "-")
	fields := strings.Split(core, ".")
	if len(fields) > 3 {
		return p, fmt.Errorf("version %q has too many components", s)
	}
	wild := false
	for i, f := range fields {
		if f == "x" || f == "X" || f == "*" {
			wild = true
			continue
		}
		if wild {
			return p, fmt.Errorf("version %q has a number after a wildcard", s)
		}
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return p, fmt.Errorf("version %q: %w", s, err)
		}
		p.nums[i] = n
		p.parts++
	}
	if p.pre != "" {
		if p.parts != 3 {
			return p, fmt.Errorf("version %q: pre-release needs a full version", s)
		}
		if _, err := Parse(s); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (p partial) exact() bool { return p.parts == 3 }

// floor is the lowest version matched by p.
func (p partial) floor() Version {
	s := fmt.Sprintf("%d.%d.%d", p.nums[0], p.nums[1], p.nums[2])
	if p.pre != "" {
		s += "-" + p.pre
	}
	return MustParse(s)
}

// ceiling is the lowest version above everything p matches when the last
// given component is bumped. ok is false for "*", which has no ceiling.
func (p partial) ceiling(parts int) (Version, bool) {
	switch parts {
	case 0:
		return Version{}, false
	case 1:
		return MustParse(fmt.Sprintf("%d.0.0", p.nums[0]+1)), true
	case 2:
		return MustParse(fmt.Sprintf("%d.%d.0", p.nums[0], p.nums[1]+1)), true
	default:
		return MustParse(fmt.Sprintf("%d.%d.%d", p.nums[0], p.nums[1], p.nums[2]+1)), true
	}
}

// span matches [floor, ceiling) of the first parts components.
func (p partial) span(parts int) predicate {
	if parts == 0 {
		return func(Version) bool { return true }
	}
	lo := atLeast(p.floor())
	hi, ok := p.ceiling(parts)
	if !ok {
		return lo
	}
	return and(lo, below(hi))
}

func compare(op string, b partial) predicate {
	if !b.exact() {
		whole := b.span(b.parts)
		switch op {
		case "=", "==":
			return whole
		case "!=":
			return func(v Version) bool { return !whole(v) }
		case ">=":
			return atLeast(b.floor())
		case "<":
			return below(b.floor())
		case ">":
			if hi, ok := b.ceiling(b.parts); ok {
				return atLeast(hi)
			}
			return func(Version) bool { return false }
		case "<=":
			if hi, ok := b.ceiling(b.parts); ok {
				return below(hi)
			}
			return func(Version) bool { return true }
		}
	}
	bv := b.floor()
	switch op {
	case "!=":
		return func(v Version) bool { return v.Compare(bv) != 0 }
	case ">":
		return func(v Version) bool { return v.Compare(bv) > 0 }
	case ">=":
		return atLeast(bv)
	case "<":
		return below(bv)
	case "<=":
		return func(v Version) bool { return v.Compare(bv) <= 0 }
	default:
		return func(v Version) bool { return v.Compare(bv) == 0 }
	}
}

// tilde allows patch-level changes when a minor version is given and
// minor-level changes otherwise.
func tilde(b partial) predicate {
	if b.parts >= 2 {
		return b.span(2)
	}
	return b.span(b.parts)
}

// caret allows changes that keep the left-most non-zero component.
func caret(b partial) predicate {
	switch {
	case b.parts == 0:
		return b.span(0)
	case b.nums[0] > 0 || b.parts == 1:
		return b.span(1)
	case b.nums[1] > 0 || b.parts == 2:
		return b.span(2)
	default:
		return b.span(3)
	}
}

func atLeast(lo Version) predicate {
	return func(v Version) bool { return v.Compare(lo) >= 0 }
}

func below(hi Version) predicate {
	return func(v Version) bool { return v.Compare(hi) < 0 }
}

func and(a, b predicate) predicate {
	return func(v Version) bool { return a(v) && b(v) }
}

func or(a, b predicate) predicate {
	return func(v Version) bool { return a(v) || b(v) }
}
