package core

import "testing"

func TestFormatRunID(t *testing.T) {
	if got := FormatRunID(7); got != "run_7" {
		t.Errorf("expected run_7, got %s", got)
	}
}

func TestParseRunID(t *testing.T) {
	tests := []struct {
		input  string
		wantN  int
		wantOK bool
	}{
		{"run_1", 1, true},
		{"run_42", 42, true},
		{"run_0", 0, true},
		{"run_", 0, false},
		{"run_abc", 0, false},
		{"run_-3", 0, false},
		{"boot_5", 0, false},
		{"", 0, false},
		{"run_1x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			n, ok := ParseRunID(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if ok && n != tt.wantN {
				t.Errorf("n: got %d, want %d", n, tt.wantN)
			}
		})
	}
}

func TestRunIDRoundTrip(t *testing.T) {
	for _, n := range []int{1, 10, 9999} {
		id := FormatRunID(n)
		parsed, ok := ParseRunID(id)
		if !ok || parsed != n {
			t.Errorf("round-trip failed for %d: got %d, ok=%v", n, parsed, ok)
		}
	}
}
