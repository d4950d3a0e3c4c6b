package util

import "testing"

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name string
		in   any
		def  float64
		want float64
	}{
		{"json number", float64(42.5), 0, 42.5},
		{"quoted number", "23.5", 0, 23.5},
		{"int", 7, 0, 7},
		{"garbage string", "abc", 1.5, 1.5},
		{"nil", nil, 9, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AsFloat(tt.in, tt.def); got != tt.want {
				t.Errorf("AsFloat(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAsInt(t *testing.T) {
	if got := AsInt(float64(8.9), 0); got != 8 {
		t.Errorf("expected truncation to 8, got %d", got)
	}
	if got := AsInt("12", 0); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	if got := AsInt(true, 3); got != 3 {
		t.Errorf("expected default 3, got %d", got)
	}
}

func TestFirstPresent(t *testing.T) {
	m := map[string]any{"lon": 10.0, "longitude": 20.0}

	v, ok := FirstPresent(m, "lng", "lon", "longitude")
	if !ok || v != 10.0 {
		t.Errorf("expected lon=10 to win, got %v", v)
	}

	_, ok = FirstPresent(m, "missing")
	if ok {
		t.Error("expected no match")
	}

	m["null"] = nil
	_, ok = FirstPresent(m, "null")
	if ok {
		t.Error("nil values must not match")
	}
}
