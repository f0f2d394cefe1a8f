package cli

import "testing"

func TestShortID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"0f9d2c41-1b7a-4a6e-9f1c-2d3e4f5a6b7c", "0f9d2c41"},
		{"abcdefgh", "abcdefgh"},
		{"sp1", "sp1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortID(tt.id); got != tt.want {
			t.Errorf("shortID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
