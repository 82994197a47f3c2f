// Package bindings defines the binding table: the enumerated, explicit set
// of names generated code is permitted to reference. The table is the
// sandbox's entire capability boundary — the executor exposes these values
// and nothing else, so a name absent from the table simply does not exist
// inside generated code.
package bindings

import (
	"fmt"
	"reflect"

	"chartsynth/internal/vdom"
)

// Primitive is an opaque chart building block. Generated code never calls a
// primitive; it only passes one to construct, and the host interprets the
// mounted tree.
type Primitive struct {
	name string
}

func (p Primitive) String() string { return p.name }

// EmitFunc is the state-update primitive: generated code reports dashboard
// events (filter changes, drill-downs) through it. The sink is injected
// explicitly by the owning controller; there is no ambient global to poke.
type EmitFunc func(event string, payload any)

// chartPrimitives is the fixed set of rendering primitives exposed to
// generated code, mirroring the chart vocabulary the generation service is
// prompted with.
var chartPrimitives = []string{
	"BarChart", "Bar",
	"LineChart", "Line",
	"AreaChart", "Area",
	"PieChart", "Pie", "Cell",
	"ScatterChart", "Scatter",
	"XAxis", "YAxis", "ZAxis",
	"CartesianGrid", "Tooltip", "Legend",
	"ResponsiveContainer", "LabelList",
}

// Table is the read-only binding table. It is constructed once at process
// start and shared, never mutated, across all synthesis attempts.
type Table struct {
	names  []string
	values map[string]reflect.Value
}

// New builds the standard table: the construct and props helpers, the chart
// primitives, and the emit sink. A nil sink is replaced by a no-op so
// generated code can always call emit.
func New(emit EmitFunc) *Table {
	if emit == nil {
		emit = func(string, any) {}
	}
	t := &Table{values: make(map[string]reflect.Value)}
	t.add("construct", vdom.Construct)
	t.add("props", vdom.PropsOf)
	t.add("emit", emit)
	for _, name := range chartPrimitives {
		t.add(name, Primitive{name: name})
	}
	return t
}

func (t *Table) add(name string, value any) {
	if _, dup := t.values[name]; dup {
		panic(fmt.Sprintf("bindings: duplicate name %q", name))
	}
	t.names = append(t.names, name)
	t.values[name] = reflect.ValueOf(value)
}

// Names returns the enumerated binding names in registration order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether name is a table entry.
func (t *Table) Has(name string) bool {
	_, ok := t.values[name]
	return ok
}

// Lookup returns the bound value for name.
func (t *Table) Lookup(name string) (reflect.Value, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Exports returns a copy of the table in the reflect form the executor
// feeds to the interpreter. The copy keeps the table itself immutable.
func (t *Table) Exports() map[string]reflect.Value {
	out := make(map[string]reflect.Value, len(t.values))
	for name, v := range t.values {
		out[name] = v
	}
	return out
}
