package transform

import (
	"strings"
	"testing"
)

func TestRewrite(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "markup after return",
			code: "func Chart() any {\n\treturn <Tooltip/>\n}",
			want: "func Chart() any {\n\treturn construct(Tooltip, nil)\n}",
		},
		{
			name: "markup at start of text",
			code: "<Bar data={rows}/>",
			want: `construct(Bar, props("data", rows))`,
		},
		{
			name: "markup after assignment",
			code: "chart := <Legend/>",
			want: "chart := construct(Legend, nil)",
		},
		{
			name: "comparison is not markup",
			code: "if a <b { a = b }",
			want: "if a <b { a = b }",
		},
		{
			name: "bare less-than inside text child stays text",
			code: "return <Bar>x < 3</Bar>",
			want: `return construct(Bar, nil, "x < 3")`,
		},
		{
			name: "markup inside string literal untouched",
			code: `s := "<Bar data={x}/>"`,
			want: `s := "<Bar data={x}/>"`,
		},
		{
			name: "markup inside line comment untouched",
			code: "x := 1 // <Bar/>\nreturn x",
			want: "x := 1 // <Bar/>\nreturn x",
		},
		{
			name: "markup inside block comment untouched",
			code: "/* <Bar/> */ x := 2",
			want: "/* <Bar/> */ x := 2",
		},
		{
			name: "markup at statement start after identifier line",
			code: "x := 1\n<Bar data={x}/>",
			want: "x := 1\nconstruct(Bar, props(\"data\", x))",
		},
		{
			name: "markup at statement start after closing paren line",
			code: "f(x)\n<Tooltip/>",
			want: "f(x)\nconstruct(Tooltip, nil)",
		},
		{
			name: "identity when no markup",
			code: "func Chart() any {\n\treturn construct(Bar, nil)\n}",
			want: "func Chart() any {\n\treturn construct(Bar, nil)\n}",
		},
		{
			name: "nested markup inside expression child",
			code: `return <Wrap>{pick(<Tooltip/>, <Legend/>)}</Wrap>`,
			want: `return construct(Wrap, nil, pick(construct(Tooltip, nil), construct(Legend, nil)))`,
		},
		{
			name: "nested markup inside attribute expression",
			code: `return <Chart label={<Legend/>}/>`,
			want: `return construct(Chart, props("label", construct(Legend, nil)))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := Rewrite(tt.code)
			if err != nil {
				t.Fatalf("Rewrite: %v", err)
			}
			if mod.Body != tt.want {
				t.Errorf("body:\n got: %s\nwant: %s", mod.Body, tt.want)
			}
		})
	}
}

func TestRewriteSingleCallForSelfClosingElement(t *testing.T) {
	mod, err := Rewrite(`<Bar data={rows} fill="red"/>`)
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if n := strings.Count(mod.Body, "construct("); n != 1 {
		t.Errorf("construct call count = %d, want exactly 1\nbody: %s", n, mod.Body)
	}
	if !strings.Contains(mod.Body, `props("data", rows, "fill", "red")`) {
		t.Errorf("props do not preserve written key order: %s", mod.Body)
	}
}

func TestRewriteMalformedMarkup(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"mismatched close", "return <Bar><Line/></Baz>"},
		{"missing close", "return <Bar>"},
		{"nested malformed", "return <Wrap>{f(<Bar>)}</Wrap>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rewrite(tt.code); err == nil {
				t.Fatalf("Rewrite(%q) succeeded, want parse error", tt.code)
			}
		})
	}
}
