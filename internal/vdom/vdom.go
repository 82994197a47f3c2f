// Package vdom is the render target of the synthesis pipeline: an ordered
// props list, a tree of nodes, and a mount pass that expands component
// functions into host nodes with full panic isolation. The mounted tree is
// opaque to the pipeline; the host decides what to do with it.
package vdom

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Props is an ordered name -> value list. Key order is the order keys were
// first written, matching the attribute order of the markup the props came
// from.
type Props struct {
	keys   []string
	values map[string]any
}

// NewProps returns an empty props list.
func NewProps() *Props {
	return &Props{values: make(map[string]any)}
}

// Set adds or replaces a key. A replaced key keeps its original position.
func (p *Props) Set(key string, value any) *Props {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value for key.
func (p *Props) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in written order. The returned slice is shared;
// callers must not mutate it.
func (p *Props) Keys() []string { return p.keys }

// Len returns the number of keys.
func (p *Props) Len() int { return len(p.keys) }

// PropsOf builds a Props from alternating key/value arguments. Keys must be
// strings; a trailing key with no value becomes a boolean true flag, and
// non-string keys are skipped rather than rejected.
func PropsOf(kv ...any) any {
	p := NewProps()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(kv) {
			p.Set(key, kv[i+1])
		} else {
			p.Set(key, true)
		}
	}
	return p
}

// Node is one element of the tree. Type is a host tag (string or an opaque
// primitive value) or a component function still to be expanded; a Node with
// a nil Type is plain text.
type Node struct {
	Type     any
	Props    *Props
	Children []*Node
	Text     string
}

// TextNode wraps plain text.
func TextNode(text string) *Node {
	return &Node{Text: text}
}

// Construct builds a Node from a type, an optional props value, and
// children. It is the call expression every markup element serializes to
// and is injected into generated code through the binding table.
func Construct(typ any, propsv any, children ...any) any {
	n := &Node{Type: typ}
	if p, ok := propsv.(*Props); ok {
		n.Props = p
	}
	for _, child := range children {
		if c := toNode(child); c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

func toNode(v any) *Node {
	switch c := v.(type) {
	case nil:
		return nil
	case *Node:
		return c
	case string:
		return TextNode(c)
	default:
		if isElementType(v) {
			return &Node{Type: v}
		}
		return TextNode(fmt.Sprint(v))
	}
}

// isElementType reports whether a value can stand as a node type on its
// own: a component function, or a named host primitive.
func isElementType(v any) bool {
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return true
	}
	_, named := v.(fmt.Stringer)
	return named
}

// maxDepth bounds component expansion so a self-referential unit cannot
// recurse without limit during mount.
const maxDepth = 64

// Mount expands unit into a fully-resolved host tree. Any panic or error
// raised by a component along the way is captured and returned; the host
// process is never destabilized by a faulty unit.
func Mount(unit any, props *Props) (node *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			node = nil
			err = fmt.Errorf("component panicked during mount: %v", r)
		}
	}()
	return expand(toNode(withProps(unit, props)), 0)
}

// withProps pairs a raw unit with the mount props when the unit is not
// already a node.
func withProps(unit any, props *Props) any {
	if n, ok := unit.(*Node); ok {
		return n
	}
	if isElementType(unit) {
		return &Node{Type: unit, Props: props}
	}
	return unit
}

func expand(n *Node, depth int) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("component tree exceeds depth %d; possible self-recursive unit", maxDepth)
	}

	if n.Type != nil && reflect.ValueOf(n.Type).Kind() == reflect.Func {
		props := n.Props
		if len(n.Children) > 0 {
			if props == nil {
				props = NewProps()
			}
			props.Set("children", n.Children)
		}
		out, err := invoke(reflect.ValueOf(n.Type), props)
		if err != nil {
			return nil, err
		}
		return expand(toNode(out), depth+1)
	}

	for i, child := range n.Children {
		expanded, err := expand(child, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children[i] = expanded
	}
	return n, nil
}

// invoke calls a component function with the props it can accept. Supported
// shapes are func() R, func(props) R, and either with a trailing error
// result; anything else is a render failure, not a crash.
func invoke(fn reflect.Value, props *Props) (any, error) {
	t := fn.Type()
	if t.IsVariadic() || t.NumIn() > 1 {
		return nil, fmt.Errorf("unsupported component signature %s", t)
	}

	var args []reflect.Value
	if t.NumIn() == 1 {
		in := t.In(0)
		switch {
		case props == nil:
			args = []reflect.Value{reflect.Zero(in)}
		case reflect.TypeOf(props).AssignableTo(in):
			args = []reflect.Value{reflect.ValueOf(props)}
		default:
			return nil, fmt.Errorf("component takes %s, cannot pass props", in)
		}
	}

	results := fn.Call(args)
	switch len(results) {
	case 1:
		return results[0].Interface(), nil
	case 2:
		if err, ok := results[1].Interface().(error); ok && err != nil {
			return nil, fmt.Errorf("component returned error: %w", err)
		}
		return results[0].Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported component signature %s", t)
	}
}

// Format renders a mounted tree as an indented, HTML-like dump for logs and
// the CLI.
func Format(n *Node) string {
	var b strings.Builder
	writeNode(&b, n, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *Node, indent int) {
	if n == nil {
		return
	}
	pad := strings.Repeat("  ", indent)
	if n.Type == nil {
		fmt.Fprintf(b, "%s%s\n", pad, n.Text)
		return
	}

	fmt.Fprintf(b, "%s<%s", pad, typeName(n.Type))
	if n.Props != nil {
		for _, key := range n.Props.Keys() {
			v, _ := n.Props.Get(key)
			fmt.Fprintf(b, " %s=%s", key, formatValue(v))
		}
	}
	if len(n.Children) == 0 {
		b.WriteString("/>\n")
		return
	}
	b.WriteString(">\n")
	for _, child := range n.Children {
		writeNode(b, child, indent+1)
	}
	fmt.Fprintf(b, "%s</%s>\n", pad, typeName(n.Type))
}

func typeName(typ any) string {
	switch t := typ.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return reflect.TypeOf(typ).String()
	}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("{%v}", v)
}
