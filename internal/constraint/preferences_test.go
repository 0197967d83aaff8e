package constraint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePreferences(t *testing.T) {
	tests := []struct {
		text string
		want Set
	}{
		{"less than $250", Set{Max(250)}},
		{"a black office chair under 300", Set{Categories("office chair"), Max(300), Colors("black")}},
		{"between $100 and $200", Set{Min(100), Max(200)}},
		{"$100 to $200", Set{Min(100), Max(200)}},
		{"around $100", Set{Min(80), Max(120)}},
		{"at least $50", Set{Min(50)}},
		{"my budget is $150", Set{Max(150)}},
		{"grey desk chair with arm rests and wheels", Set{Categories("office chair"), Colors("gray"), Features("armrests", "wheels")}},
		{"a comfy couch", Set{Categories("sofa")}},
		{"a sofa under $1,200", Set{Categories("sofa"), Max(1200)}},
		{"sofa between $1,000 and $1,500", Set{Categories("sofa"), Min(1000), Max(1500)}},
		{"$1,000 - $2,499.99", Set{Min(1000), Max(2499.99)}},
		{"under 1200", Set{Max(1200)}},
		{"hello there", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Set{}.Merge(ParsePreferences(tt.text)...)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePreferences(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestParsePreferences_Deterministic(t *testing.T) {
	text := "white or beige armchair around $200 with cushions"
	first := ParsePreferences(text)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, ParsePreferences(text)); diff != "" {
			t.Fatalf("run %d differs:\n%s", i, diff)
		}
	}
}

func TestContainsTerm(t *testing.T) {
	tests := []struct {
		text, term string
		want       bool
	}{
		{"black office chairs", "office chair", true},
		{"armchair", "chair", false},
		{"chair, black", "chair", true},
		{"white benches", "bench", true},
		{"darkness", "dark", false},
		{"", "chair", false},
		{"chair", "", false},
	}
	for _, tt := range tests {
		if got := ContainsTerm(tt.text, tt.term); got != tt.want {
			t.Errorf("ContainsTerm(%q, %q) = %v, want %v", tt.text, tt.term, got, tt.want)
		}
	}
}
