package suggest

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Body text\n⸻\n", "Body text"},
		{"Cotton twill\n---", "Cotton twill"},
		{"Price: $40 -", "Price: $40"},
		{"A\n___\nB", "A\nB"},
		{"A\n—\nB", "A\nB"},
		{"6-8 weeks", "6-8 weeks"},
		{"  padded  ", "padded"},
		{"Line one\n\n  \n- -\n", "Line one"},
		{"⸻", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"Body text\n⸻\n",
		"___ -",
		"—\n—",
		"x — \n ⸻ \n__",
		"Keep - this\n- and this\n\n---\n",
		" tail - ",
		"**Materials**\nCotton\n–––",
		"plain",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
