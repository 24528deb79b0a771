package tokens

import "testing"

func TestHeuristicCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t", 0},
		{"short text floors at one", "hi", 1},
		{"exact multiple", "abcdefgh", 2},
		{"trimmed before counting", "  abcdefgh  ", 2},
		{"runes not bytes", "日本語日本語日本", 2},
	}
	h := NewHeuristic()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Count(tt.text); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeuristicZeroCalibration(t *testing.T) {
	h := Heuristic{}
	if got := h.Count("abcdefgh"); got != 2 {
		t.Errorf("expected default calibration, got %d", got)
	}
}

func TestCounterFunc(t *testing.T) {
	c := CounterFunc(func(s string) int { return len(s) })
	if c.Count("abc") != 3 {
		t.Error("CounterFunc did not delegate")
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("nope", ""); err == nil {
		t.Error("expected error for unknown counter")
	}
	c, err := New("", "")
	if err != nil {
		t.Fatalf("default counter: %v", err)
	}
	if _, ok := c.(Heuristic); !ok {
		t.Errorf("expected Heuristic default, got %T", c)
	}
}
