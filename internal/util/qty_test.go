package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
		unit  string
	}{
		{name: "bare", input: "10", want: 10},
		{name: "thousand with space", input: "1 000 pcs", want: 1000, unit: "pcs"},
		{name: "thousand with comma", input: "2,500", want: 2500},
		{name: "decimal comma", input: "1,5 m", want: 1.5, unit: "m"},
		{name: "decimal dot", input: "1.5 m", want: 1.5, unit: "m"},
		{name: "thousand dot", input: "1.000 ea", want: 1000, unit: "pcs"},
		{name: "labelled", input: "qty: 4", want: 4},
		{name: "last number with unit wins", input: "R0603 kit 100 pcs", want: 100, unit: "pcs"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if *parsed.Qty != tc.want {
				t.Fatalf("got %v want %v", *parsed.Qty, tc.want)
			}
			if tc.unit != "" && (parsed.Unit == nil || *parsed.Unit != tc.unit) {
				t.Fatalf("unit=%v want %s", parsed.Unit, tc.unit)
			}
		})
	}
}

func TestParseQtyEmpty(t *testing.T) {
	if got := ParseQty("n/a"); got.Qty != nil {
		t.Fatalf("expected nil qty, got %v", *got.Qty)
	}
}
