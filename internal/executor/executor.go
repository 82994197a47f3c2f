// Package executor compiles a transformed module body into a single
// evaluation against the binding table and runs it once. Execution happens
// inside a yaegi interpreter with no standard library symbols loaded: the
// dot-imported binding table is the entire visible scope, and because yaegi
// interprets the AST no native code path is reachable from generated text.
package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/traefik/yaegi/interp"

	"chartsynth/internal/bindings"
	"chartsynth/internal/transform"
)

// DefaultTimeout bounds a single evaluation so generated code that spins
// cannot hang a synthesis attempt.
const DefaultTimeout = 5 * time.Second

// Config tunes the executor.
type Config struct {
	// Timeout for one evaluation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Executor runs transformed module bodies. It is stateless across runs; a
// fresh interpreter is created per attempt so attempts cannot observe each
// other.
type Executor struct {
	timeout time.Duration
}

// New returns an Executor with the given config.
func New(cfg Config) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{timeout: timeout}
}

// Result is whatever one evaluation produced: the value of the final
// expression (invalid when the body only declares things, which is not an
// executor failure) plus lookup access to the scope the body populated.
type Result struct {
	// Value is the last evaluated expression, possibly invalid.
	Value reflect.Value

	lookup  func(name string) (reflect.Value, bool)
	symbols func() map[string]reflect.Value
}

// Lookup resolves a name against the evaluated scope, including both names
// the body defined and the injected bindings.
func (r *Result) Lookup(name string) (reflect.Value, bool) {
	return r.lookup(name)
}

// Symbols returns the top-level names the body itself defined.
func (r *Result) Symbols() map[string]reflect.Value {
	return r.symbols()
}

// StaticResult builds a Result over a fixed symbol map, for hosts and tests
// that inspect resolution behavior without running an interpreter.
func StaticResult(value reflect.Value, symbols map[string]reflect.Value) *Result {
	return &Result{
		Value: value,
		lookup: func(name string) (reflect.Value, bool) {
			v, ok := symbols[name]
			return v, ok
		},
		symbols: func() map[string]reflect.Value {
			out := make(map[string]reflect.Value, len(symbols))
			for name, v := range symbols {
				out[name] = v
			}
			return out
		},
	}
}

// bindingsPath is the virtual package the table is exposed under; the body
// sees its contents via a dot import, so the enumerated names are ambient
// inside the evaluation and nothing else is.
const bindingsPath = "bindings/bindings"

// Run evaluates the module body against the table. Malformed text and
// exceptions during evaluation both surface as errors here; resolving which
// produced value is "the component" is the resolver's job, not Run's.
func (e *Executor) Run(ctx context.Context, mod transform.Module, table *bindings.Table) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	i := interp.New(interp.Options{})
	if err := i.Use(interp.Exports{bindingsPath: table.Exports()}); err != nil {
		return nil, fmt.Errorf("binding injection failed: %w", err)
	}
	if _, err := i.Eval(`import . "bindings"`); err != nil {
		return nil, fmt.Errorf("binding import failed: %w", err)
	}

	value, err := i.EvalWithContext(ctx, mod.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("evaluation exceeded %s time limit", e.timeout)
		}
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	return &Result{
		Value:   value,
		lookup:  func(name string) (reflect.Value, bool) { return evalName(i, name) },
		symbols: func() map[string]reflect.Value { return definedSymbols(i) },
	}, nil
}

// evalName resolves a single identifier in the interpreter scope. yaegi
// reports unknown names as errors (and can panic on malformed input), both
// of which just mean "not found" here.
func evalName(i *interp.Interpreter, name string) (v reflect.Value, ok bool) {
	if !isIdent(name) {
		return reflect.Value{}, false
	}
	defer func() {
		if recover() != nil {
			v, ok = reflect.Value{}, false
		}
	}()
	v, err := i.Eval(name)
	if err != nil || !v.IsValid() {
		return reflect.Value{}, false
	}
	return v, true
}

// definedSymbols collects the top-level names the evaluated body defined.
// REPL-scope definitions live in the interpreter's main package.
func definedSymbols(i *interp.Interpreter) map[string]reflect.Value {
	out := make(map[string]reflect.Value)
	for _, scope := range i.Symbols("main") {
		for name, v := range scope {
			out[name] = v
		}
	}
	return out
}

func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		letter := b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_'
		digit := b >= '0' && b <= '9'
		if !letter && !(digit && i > 0) {
			return false
		}
	}
	return true
}
