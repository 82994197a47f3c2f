// Package transform rewrites sanitized component code into plain executable
// text: every markup expression is replaced by the nested construct(...)
// call the markup package serializes, and everything else passes through
// verbatim. The stage is a pure text-to-text rewrite; it does not validate
// the surrounding code, so non-markup faults surface later at the executor.
package transform

import (
	"chartsynth/internal/markup"
)

// Module is the executable body derived from one sanitized source. It has no
// lifecycle of its own: it is recomputed whenever the source changes and
// never cached across sources.
type Module struct {
	Body string
}

// Rewrite converts sanitized code into an executable Module. A malformed
// markup region yields the positioned parse error; callers surface it as a
// transform diagnostic.
func Rewrite(code string) (Module, error) {
	body, err := rewriteText(code)
	if err != nil {
		return Module{}, err
	}
	return Module{Body: body}, nil
}

// keywords after which a '<' opens markup rather than a comparison.
var exprKeywords = map[string]bool{
	"return": true,
	"case":   true,
	"range":  true,
	"go":     true,
	"defer":  true,
}

func rewriteText(code string) (string, error) {
	var out []byte
	var nestedErr error

	// rewrite recurses into expression islands so markup nested inside
	// callbacks and attribute values is rewritten too.
	rewrite := func(expr string) string {
		inner, err := rewriteText(expr)
		if err != nil {
			if nestedErr == nil {
				nestedErr = err
			}
			return expr
		}
		return inner
	}

	var (
		prev   byte   // last significant byte emitted
		word   []byte // identifier immediately preceding prev, inclusive
		inWord bool   // prev byte belonged to word
	)

	i := 0
	for i < len(code) {
		c := code[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			end := skipLiteral(code, i)
			out = append(out, code[i:end]...)
			i = end
			prev, word, inWord = c, nil, false
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			end := skipLineComment(code, i)
			out = append(out, code[i:end]...)
			i = end
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			end := skipBlockComment(code, i)
			out = append(out, code[i:end]...)
			i = end
		case c == '<' && i+1 < len(code) && isTagStart(code[i+1]) && atExprPosition(prev, string(word)):
			el, end, err := markup.Parse(code, i)
			if err != nil {
				return "", err
			}
			serialized := el.Serialize(rewrite)
			if nestedErr != nil {
				return "", nestedErr
			}
			out = append(out, serialized...)
			i = end
			prev, word, inWord = ')', nil, false
		default:
			out = append(out, c)
			i++
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
				// A line break ends the statement (implicit semicolon
				// after an identifier, literal, or closer), so a '<' on
				// the next line cannot continue a comparison.
				if c == '\n' {
					prev, word = 0, nil
				}
				inWord = false
				break
			}
			prev = c
			if isIdentByte(c) {
				if !inWord {
					word = nil
				}
				word = append(word, c)
				inWord = true
			} else {
				word, inWord = nil, false
			}
		}
	}
	return string(out), nil
}

// atExprPosition reports whether a '<' at this point starts markup. After an
// identifier or a closing delimiter the '<' is a comparison; after an
// opening delimiter, an operator, or an expression keyword it is markup.
func atExprPosition(prev byte, word string) bool {
	if prev == 0 {
		return true // start of text
	}
	if isIdentByte(prev) {
		return exprKeywords[word]
	}
	switch prev {
	case ')', ']', '"', '\'', '`':
		return false
	}
	return true
}

func isTagStart(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
}

func isIdentByte(b byte) bool {
	return isTagStart(b) || b >= '0' && b <= '9'
}

// skipLiteral returns the index just past the literal opening at code[i].
// Unterminated literals run to end of text; the executor reports those.
func skipLiteral(code string, i int) int {
	quote := code[i]
	i++
	for i < len(code) {
		if code[i] == '\\' && quote != '`' {
			i += 2
			continue
		}
		if code[i] == quote {
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(code string, i int) int {
	for i < len(code) && code[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(code string, i int) int {
	i += 2
	for i+1 < len(code) {
		if code[i] == '*' && code[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(code)
}
