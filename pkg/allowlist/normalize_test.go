package allowlist

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already canonical", "alice@example.com", "alice@example.com"},
		{"uppercase", "ALICE@EXAMPLE.COM", "alice@example.com"},
		{"mixed case", "Alice@Example.Com", "alice@example.com"},
		{"leading whitespace", "  alice@example.com", "alice@example.com"},
		{"trailing whitespace", "alice@example.com\t\n", "alice@example.com"},
		{"both", "  Alice@Example.COM  ", "alice@example.com"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"  Alice@Example.COM ", "bob@test.org", "ÜSER@DOMAIN.DE"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
