package content

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "hello world", "hello world"},
		{"tags stripped", "<b>bold</b> move", "bold move"},
		{"script removed entirely", "<script>alert(1)</script>", ""},
		{"whitespace trimmed", "  padded  ", "padded"},
		{"tag plus whitespace collapses to empty", " <img src=x onerror=alert(1)> ", ""},
		{"unicode preserved", "привет 👋", "привет 👋"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.input); got != tc.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
