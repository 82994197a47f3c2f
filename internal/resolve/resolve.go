// Package resolve extracts "the component" from whatever an evaluation
// produced. The heuristics are an ordered list of independently testable
// strategies; each tries once, the first hit wins, and a miss reports every
// strategy that was tried so the resulting diagnostic is precise.
package resolve

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"chartsynth/internal/bindings"
	"chartsynth/internal/executor"
	"chartsynth/internal/vdom"
)

// Strategy is one resolution heuristic.
type Strategy interface {
	// Name identifies the strategy in diagnostics.
	Name() string
	// Resolve inspects the evaluation result for a component.
	Resolve(res *executor.Result, declared string) (any, bool)
}

// Resolved pairs the component with the strategy that found it.
type Resolved struct {
	Component any
	Strategy  string
}

// Resolver runs the strategy list in order.
type Resolver struct {
	strategies []Strategy
}

// New builds the standard resolver: declared name, Default slot, the module
// value itself, then a capitalized-symbol scan that skips the injected
// binding names.
func New(table *bindings.Table) *Resolver {
	return &Resolver{strategies: []Strategy{
		declaredName{table: table},
		defaultSlot{},
		moduleValue{},
		capitalizedScan{table: table},
	}}
}

// Resolve returns the first component any strategy finds. The error on a
// full miss names the declared name that was searched for and every
// strategy tried; it exists for diagnostics, not retry logic.
func (r *Resolver) Resolve(res *executor.Result, declared string) (*Resolved, error) {
	tried := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		tried = append(tried, s.Name())
		if component, ok := s.Resolve(res, declared); ok {
			return &Resolved{Component: component, Strategy: s.Name()}, nil
		}
	}
	return nil, fmt.Errorf("no component named %q could be resolved (strategies tried: %s)",
		declared, strings.Join(tried, ", "))
}

// mountable reports whether a value can serve as a component: a function to
// expand, a chart primitive, or an already-built node.
func mountable(v reflect.Value) bool {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return false
	}
	if v.Kind() == reflect.Func {
		return !v.IsNil()
	}
	switch v.Interface().(type) {
	case bindings.Primitive, *vdom.Node:
		return true
	}
	return false
}

// sameBinding reports whether a looked-up value is the injected binding
// itself rather than something the body defined under the same name.
func sameBinding(bound, v reflect.Value) bool {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || bound.Type() != v.Type() {
		return false
	}
	if bound.Kind() == reflect.Func {
		return bound.Pointer() == v.Pointer()
	}
	if !bound.Type().Comparable() {
		return false
	}
	return bound.Interface() == v.Interface()
}

// declaredName finds a value in scope exactly named after the declared
// component name. A hit that turns out to be the injected binding itself is
// rejected: the strategy looks for something the body produced, and a bare
// element expression already carries its built node as the module value.
type declaredName struct {
	table *bindings.Table
}

func (declaredName) Name() string { return "declared-name" }

func (s declaredName) Resolve(res *executor.Result, declared string) (any, bool) {
	v, ok := res.Lookup(declared)
	if !ok || !mountable(v) {
		return nil, false
	}
	if bound, has := s.table.Lookup(declared); has && sameBinding(bound, v) {
		return nil, false
	}
	return v.Interface(), true
}

// defaultSlot finds the conventional default-export slot: a top-level value
// named Default.
type defaultSlot struct{}

func (defaultSlot) Name() string { return "default-slot" }

func (defaultSlot) Resolve(res *executor.Result, _ string) (any, bool) {
	v, ok := res.Lookup("Default")
	if !ok || !mountable(v) {
		return nil, false
	}
	return v.Interface(), true
}

// moduleValue takes the evaluation's own value when it is itself mountable:
// a callable, or the node a bare element expression built.
type moduleValue struct{}

func (moduleValue) Name() string { return "module-value" }

func (moduleValue) Resolve(res *executor.Result, _ string) (any, bool) {
	if !mountable(res.Value) {
		return nil, false
	}
	return res.Value.Interface(), true
}

// capitalizedScan falls back to any capitalized callable the body defined
// that is not itself an injected binding. Candidates are visited in lexical
// order so the fallback is deterministic.
type capitalizedScan struct {
	table *bindings.Table
}

func (capitalizedScan) Name() string { return "capitalized-scan" }

func (s capitalizedScan) Resolve(res *executor.Result, _ string) (any, bool) {
	symbols := res.Symbols()
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r, _ := utf8.DecodeRuneInString(name)
		if !unicode.IsUpper(r) || s.table.Has(name) {
			continue
		}
		v := symbols[name]
		if v.IsValid() && v.Kind() == reflect.Func && !v.IsNil() {
			return v.Interface(), true
		}
	}
	return nil, false
}
