package guard

import "testing"

func TestHasLoopPattern(t *testing.T) {
	tests := []struct {
		name   string
		window []string
		want   bool
	}{
		{"period two", []string{"a", "b", "a", "b"}, true},
		{"no repeat", []string{"a", "b", "c", "a"}, false},
		{"adjacent repeat", []string{"a", "a"}, true},
		{"empty", nil, false},
		{"single", []string{"a"}, false},
		{"period three", []string{"a", "b", "c", "a", "b", "c"}, true},
		{"tail repeat only", []string{"x", "y", "a", "a"}, true},
		{"near miss", []string{"a", "b", "b", "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasLoopPattern(tt.window); got != tt.want {
				t.Errorf("HasLoopPattern(%v) = %v, want %v", tt.window, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello   World", "hello world"},
		{"  spaced\tout\nrequest  ", "spaced out request"},
		{"same", "same"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprint_EquivalentWork(t *testing.T) {
	if Fingerprint("Do  The THING") != Fingerprint("do the thing") {
		t.Error("expected equal fingerprints for whitespace/case variants")
	}
	if Fingerprint("do the thing") == Fingerprint("do another thing") {
		t.Error("expected different fingerprints for different work")
	}
}
