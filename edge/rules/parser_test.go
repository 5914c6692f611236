package rules

import "testing"

func TestParsePredicate_SimpleComparison(t *testing.T) {
	expr, err := parsePredicate("cpu_temp > 80")
	if err != nil {
		t.Fatalf("parsePredicate: %v", err)
	}
	got, err := expr.eval(map[string]float64{"cpu_temp": 90})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Fatal("expected true for cpu_temp=90 > 80")
	}
}

func TestParsePredicate_AndOrNotPrecedence(t *testing.T) {
	// not a and b or c  ==  ((not a) and b) or c
	expr, err := parsePredicate("not x > 5 and y < 2 or z == 0")
	if err != nil {
		t.Fatalf("parsePredicate: %v", err)
	}
	cases := []struct {
		ctx  map[string]float64
		want bool
	}{
		{map[string]float64{"x": 1, "y": 1, "z": 9}, true},  // not(false) and true
		{map[string]float64{"x": 9, "y": 1, "z": 9}, false}, // not(true) => false, z!=0
		{map[string]float64{"x": 9, "y": 1, "z": 0}, true},  // z==0 branch
	}
	for _, c := range cases {
		got, err := expr.eval(c.ctx)
		if err != nil {
			t.Fatalf("eval(%v): %v", c.ctx, err)
		}
		if got != c.want {
			t.Errorf("eval(%v) = %v, want %v", c.ctx, got, c.want)
		}
	}
}

func TestParsePredicate_Parentheses(t *testing.T) {
	expr, err := parsePredicate("(a > 1 or b > 1) and c == 1")
	if err != nil {
		t.Fatalf("parsePredicate: %v", err)
	}
	got, err := expr.eval(map[string]float64{"a": 0, "b": 2, "c": 1})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Fatal("expected true")
	}
}

func TestParsePredicate_AllComparisonOperators(t *testing.T) {
	tests := []struct {
		expr string
		ctx  map[string]float64
		want bool
	}{
		{"a < 2", map[string]float64{"a": 1}, true},
		{"a <= 1", map[string]float64{"a": 1}, true},
		{"a > 2", map[string]float64{"a": 1}, false},
		{"a >= 1", map[string]float64{"a": 1}, true},
		{"a == 1", map[string]float64{"a": 1}, true},
		{"a != 1", map[string]float64{"a": 1}, false},
	}
	for _, tt := range tests {
		expr, err := parsePredicate(tt.expr)
		if err != nil {
			t.Fatalf("parsePredicate(%q): %v", tt.expr, err)
		}
		got, err := expr.eval(tt.ctx)
		if err != nil {
			t.Fatalf("eval(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("%q with %v = %v, want %v", tt.expr, tt.ctx, got, tt.want)
		}
	}
}

func TestParsePredicate_RejectsGarbage(t *testing.T) {
	tests := []string{
		"a >",
		"a > 1 b",
		"(a > 1",
		"a ? 1",
		"__import__('os')",
	}
	for _, src := range tests {
		if _, err := parsePredicate(src); err == nil {
			t.Errorf("expected parsePredicate(%q) to fail", src)
		}
	}
}

func TestComparison_CollectVars(t *testing.T) {
	expr, err := parsePredicate("x > y and z < 10")
	if err != nil {
		t.Fatalf("parsePredicate: %v", err)
	}
	vars := map[string]struct{}{}
	expr.collectVars(vars)

	for _, want := range []string{"x", "y", "z"} {
		if _, ok := vars[want]; !ok {
			t.Errorf("expected free variable %q", want)
		}
	}
	if len(vars) != 3 {
		t.Errorf("expected 3 free variables, got %d: %v", len(vars), vars)
	}
}
