// Package markup parses the constrained markup dialect the generation
// service embeds in component code (self-closing and paired tag expressions
// with attribute lists and nested children) into an explicit element tree,
// and serializes that tree back out as plain nested call expressions.
//
// The parse is a real recursive descent over the nesting structure, so
// same-named nested tags pair correctly by construction. Serialization is a
// single deterministic pass over the tree; nothing here is pattern-matched
// against the flat text.
package markup

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AttrKind distinguishes the recognized attribute forms.
type AttrKind int

const (
	// AttrExpr is name={expr}; the expression passes through verbatim.
	AttrExpr AttrKind = iota
	// AttrString is name="literal" or name='literal'.
	AttrString
	// AttrFlag is a bare name, encoding boolean true.
	AttrFlag
)

// Attr is one attribute in written order.
type Attr struct {
	Name  string
	Kind  AttrKind
	Value string // expression text or unquoted literal; empty for AttrFlag
}

// ChildKind distinguishes the child forms of a paired element.
type ChildKind int

const (
	ChildElement ChildKind = iota
	ChildText
	ChildExpr
)

// Child is one ordered child of an element.
type Child struct {
	Kind    ChildKind
	Element *Element // ChildElement
	Text    string   // ChildText, whitespace-collapsed
	Expr    string   // ChildExpr, brace content verbatim
}

// Element is a parsed markup node. Attribute and child order is the written
// order.
type Element struct {
	Tag         string
	Attrs       []Attr
	Children    []Child
	SelfClosing bool
}

// ParseError is a positioned parse failure within the source text.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("markup parse error at offset %d: %s", e.Offset, e.Msg)
}

// Parse consumes one complete element starting at src[offset] (which must be
// the opening '<') and returns the element tree together with the offset of
// the first byte after it.
func Parse(src string, offset int) (*Element, int, error) {
	s := &scanner{src: src, pos: offset}
	el, err := s.parseElement()
	if err != nil {
		return nil, 0, err
	}
	return el, s.pos, nil
}

// scanner is a byte-position cursor over the source text.
type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) peekAt(n int) byte {
	if s.pos+n >= len(s.src) {
		return 0
	}
	return s.src[s.pos+n]
}

func (s *scanner) errf(format string, args ...any) error {
	return &ParseError{Offset: s.pos, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) skipSpace() {
	for !s.eof() {
		switch s.src[s.pos] {
		case ' ', '\t', '\n', '\r':
			s.pos++
		default:
			return
		}
	}
}

func isNameStart(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func isNameByte(b byte) bool {
	return isNameStart(b) || b >= '0' && b <= '9' || b == '.' || b == '-'
}

func (s *scanner) readName() string {
	start := s.pos
	for !s.eof() && isNameByte(s.src[s.pos]) {
		s.pos++
	}
	return s.src[start:s.pos]
}

func (s *scanner) parseElement() (*Element, error) {
	if s.peek() != '<' {
		return nil, s.errf("expected '<'")
	}
	s.pos++
	if !isNameStart(s.peek()) {
		return nil, s.errf("expected tag name after '<'")
	}
	el := &Element{Tag: s.readName()}

	if err := s.parseAttrs(el); err != nil {
		return nil, err
	}
	if el.SelfClosing {
		return el, nil
	}
	return el, s.parseChildren(el)
}

// parseAttrs consumes the attribute list and the tag terminator ('>' or
// '/>'). Unknown attribute value forms are skipped, not rejected.
func (s *scanner) parseAttrs(el *Element) error {
	for {
		s.skipSpace()
		switch {
		case s.eof():
			return s.errf("unterminated opening tag <%s", el.Tag)
		case s.peek() == '/' && s.peekAt(1) == '>':
			s.pos += 2
			el.SelfClosing = true
			return nil
		case s.peek() == '>':
			s.pos++
			return nil
		case isNameStart(s.peek()):
			attr, keep, err := s.parseAttr()
			if err != nil {
				return err
			}
			if keep {
				el.Attrs = append(el.Attrs, attr)
			}
		default:
			// Stray byte in the attribute list; skip it rather than
			// reject the whole element.
			s.pos++
		}
	}
}

func (s *scanner) parseAttr() (Attr, bool, error) {
	name := s.readName()
	s.skipSpace()
	if s.peek() != '=' {
		return Attr{Name: name, Kind: AttrFlag}, true, nil
	}
	s.pos++
	s.skipSpace()
	switch s.peek() {
	case '{':
		expr, err := s.readBraced()
		if err != nil {
			return Attr{}, false, err
		}
		return Attr{Name: name, Kind: AttrExpr, Value: expr}, true, nil
	case '"', '\'':
		lit, err := s.readQuoted()
		if err != nil {
			return Attr{}, false, err
		}
		return Attr{Name: name, Kind: AttrString, Value: lit}, true, nil
	default:
		// Unrecognized value form: consume to the next delimiter and
		// drop the attribute.
		for !s.eof() {
			b := s.peek()
			if b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '>' || b == '/' {
				break
			}
			s.pos++
		}
		return Attr{}, false, nil
	}
}

func (s *scanner) parseChildren(el *Element) error {
	for {
		if s.eof() {
			return s.errf("missing closing tag </%s>", el.Tag)
		}
		switch {
		case s.peek() == '<' && s.peekAt(1) == '/':
			closeStart := s.pos
			s.pos += 2
			name := s.readName()
			s.skipSpace()
			if s.peek() != '>' {
				return s.errf("unterminated closing tag </%s", name)
			}
			s.pos++
			if name != el.Tag {
				return &ParseError{
					Offset: closeStart,
					Msg:    fmt.Sprintf("closing tag </%s> does not match <%s>", name, el.Tag),
				}
			}
			return nil
		case s.peek() == '<' && isNameStart(s.peekAt(1)):
			child, err := s.parseElement()
			if err != nil {
				return err
			}
			el.Children = append(el.Children, Child{Kind: ChildElement, Element: child})
		case s.peek() == '{':
			expr, err := s.readBraced()
			if err != nil {
				return err
			}
			el.Children = append(el.Children, Child{Kind: ChildExpr, Expr: expr})
		default:
			text := s.readText()
			if text != "" {
				el.Children = append(el.Children, Child{Kind: ChildText, Text: text})
			}
		}
	}
}

// readText consumes plain text up to the next element or expression boundary
// and collapses interior whitespace, so formatting indentation between
// element children does not become content. A '<' that opens neither a tag
// nor a closing tag is ordinary text; stopping on it without consuming it
// would stall the child loop.
func (s *scanner) readText() string {
	start := s.pos
	for !s.eof() {
		b := s.peek()
		if b == '{' {
			break
		}
		if b == '<' && (s.peekAt(1) == '/' || isNameStart(s.peekAt(1))) {
			break
		}
		s.pos++
	}
	return strings.Join(strings.Fields(s.src[start:s.pos]), " ")
}

// readBraced consumes a balanced {...} region, honoring string literals so
// braces inside them do not count, and returns the content without the
// outer braces.
func (s *scanner) readBraced() (string, error) {
	open := s.pos
	s.pos++ // consume '{'
	depth := 1
	for !s.eof() {
		switch s.peek() {
		case '{':
			depth++
			s.pos++
		case '}':
			depth--
			s.pos++
			if depth == 0 {
				return s.src[open+1 : s.pos-1], nil
			}
		case '"', '\'', '`':
			if _, err := s.readQuoted(); err != nil {
				return "", err
			}
		default:
			s.pos++
		}
	}
	s.pos = open
	return "", s.errf("unbalanced '{'")
}

// readQuoted consumes a quoted literal (double, single, or backtick) and
// returns its unquoted content. Backslash escapes are honored in double and
// single quotes.
func (s *scanner) readQuoted() (string, error) {
	quote := s.peek()
	open := s.pos
	s.pos++
	for !s.eof() {
		b := s.peek()
		if b == '\\' && quote != '`' {
			s.pos += 2
			continue
		}
		s.pos++
		if b == quote {
			return s.src[open+1 : s.pos-1], nil
		}
	}
	s.pos = open
	return "", s.errf("unterminated %q literal", string(quote))
}

// RewriteFunc is applied to every embedded expression (attribute values and
// expression children) during serialization, so markup nested inside
// expressions is rewritten as well.
type RewriteFunc func(expr string) string

// Serialize emits the element tree as a single nested call expression:
//
//	construct(Tag, props("k", v, ...), child1, ..., childN)
//
// with nil in place of an empty props list. Capitalized tags are emitted as
// identifiers (resolved against the binding table at execution time),
// lowercase tags as string literals. rewrite may be nil.
func (el *Element) Serialize(rewrite RewriteFunc) string {
	if rewrite == nil {
		rewrite = func(expr string) string { return expr }
	}
	var b strings.Builder
	el.write(&b, rewrite)
	return b.String()
}

func (el *Element) write(b *strings.Builder, rewrite RewriteFunc) {
	b.WriteString("construct(")
	b.WriteString(el.tagRef())

	if len(el.Attrs) == 0 {
		b.WriteString(", nil")
	} else {
		b.WriteString(", props(")
		for i, attr := range el.Attrs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(attr.Name))
			b.WriteString(", ")
			switch attr.Kind {
			case AttrExpr:
				b.WriteString(rewrite(attr.Value))
			case AttrString:
				b.WriteString(strconv.Quote(attr.Value))
			case AttrFlag:
				b.WriteString("true")
			}
		}
		b.WriteString(")")
	}

	for _, child := range el.Children {
		b.WriteString(", ")
		switch child.Kind {
		case ChildElement:
			child.Element.write(b, rewrite)
		case ChildText:
			b.WriteString(strconv.Quote(child.Text))
		case ChildExpr:
			b.WriteString(rewrite(child.Expr))
		}
	}
	b.WriteString(")")
}

func (el *Element) tagRef() string {
	r, _ := utf8.DecodeRuneInString(el.Tag)
	if unicode.IsUpper(r) {
		return el.Tag
	}
	return strconv.Quote(el.Tag)
}
