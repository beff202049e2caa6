// Package marker parses and evaluates environment markers, the boolean
// predicates that gate whether a requirement applies (for example
// `python_version >= "3.8" and extra == "test"`).
package marker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ExtraName is the reserved attribute naming the active optional feature group
// of the depending package. The ambient environment never defines it.
const ExtraName = "extra"

var ErrInvalidMarker = errors.New("invalid marker")

// knownNames maps every accepted attribute spelling to its canonical name.
var knownNames = map[string]string{
	"os_name":                        "os_name",
	"sys_platform":                   "sys_platform",
	"platform_machine":               "platform_machine",
	"platform_python_implementation": "platform_python_implementation",
	"platform_release":               "platform_release",
	"platform_system":                "platform_system",
	"platform_version":               "platform_version",
	"python_version":                 "python_version",
	"python_full_version":            "python_full_version",
	"implementation_name":            "implementation_name",
	"implementation_version":         "implementation_version",
	ExtraName:                        ExtraName,
	// Legacy dotted spellings.
	"os.name":                        "os_name",
	"sys.platform":                   "sys_platform",
	"platform.version":               "platform_version",
	"platform.machine":               "platform_machine",
	"platform.python_implementation": "platform_python_implementation",
	"python_implementation":          "platform_python_implementation",
}

// Marker is a parsed environment marker.
type Marker struct {
	raw  string
	root node
}

func Parse(raw string) (*Marker, error) {
	p := &parser{lex: lexer{src: raw}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return &Marker{raw: strings.TrimSpace(raw), root: root}, nil
}

func MustParse(raw string) *Marker {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Marker) String() string {
	if m == nil {
		return ""
	}
	return m.raw
}

// Variables returns the sorted canonical attribute names the marker reads.
func (m *Marker) Variables() []string {
	if m == nil {
		return nil
	}
	seen := map[string]struct{}{}
	m.root.variables(seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Evaluate evaluates the marker against env. Every comparison is evaluated, so
// an attribute missing from env is reported even when the other side of an
// "or" would already decide the result.
func (m *Marker) Evaluate(env Environment) (bool, error) {
	if m == nil {
		return true, nil
	}
	return m.root.eval(env)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case c == '"' || c == '\'':
		end := strings.IndexByte(l.src[l.pos+1:], c)
		if end < 0 {
			return token{}, fmt.Errorf("%w: unterminated string at offset %d", ErrInvalidMarker, l.pos)
		}
		text := l.src[l.pos+1 : l.pos+1+end]
		l.pos += end + 2
		return token{kind: tokString, text: text}, nil
	case strings.IndexByte("<>=!~", c) >= 0:
		for _, op := range []string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"} {
			if strings.HasPrefix(l.src[l.pos:], op) {
				l.pos += len(op)
				return token{kind: tokOp, text: op}, nil
			}
		}
		return token{}, fmt.Errorf("%w: bad operator at offset %d", ErrInvalidMarker, l.pos)
	case isIdentByte(c):
		start := l.pos
		for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos]}, nil
	}
	return token{}, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidMarker, c, l.pos)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type parser struct {
	lex lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s in %q", ErrInvalidMarker, fmt.Sprintf(format, args...), p.lex.src)
}

func (p *parser) isKeyword(word string) bool {
	return p.tok.kind == tokIdent && p.tok.text == word
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &boolNode{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		left = &boolNode{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAtom() (node, error) {
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("expected )")
		}
		return inner, p.advance()
	}

	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOperator()
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if lhs.isVar == rhs.isVar {
		return nil, p.errorf("comparison needs one attribute and one quoted value")
	}
	return &compareNode{lhs: lhs, op: op, rhs: rhs}, nil
}

func (p *parser) parseOperand() (operand, error) {
	switch p.tok.kind {
	case tokString:
		o := operand{literal: p.tok.text}
		return o, p.advance()
	case tokIdent:
		name, ok := knownNames[p.tok.text]
		if !ok {
			return operand{}, p.errorf("unknown attribute %q", p.tok.text)
		}
		return operand{variable: name, isVar: true}, p.advance()
	}
	return operand{}, p.errorf("expected attribute or quoted value")
}

func (p *parser) parseOperator() (string, error) {
	switch {
	case p.tok.kind == tokOp:
		op := p.tok.text
		return op, p.advance()
	case p.isKeyword("in"):
		return "in", p.advance()
	case p.isKeyword("not"):
		if err := p.advance(); err != nil {
			return "", err
		}
		if !p.isKeyword("in") {
			return "", p.errorf("expected in after not")
		}
		return "not in", p.advance()
	}
	return "", p.errorf("expected comparison operator")
}
