package sqlutil

import "testing"

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "`users`"},
		{"user_data", "`user_data`"},
		{"select", "`select`"},         // reserved word
		{"first name", "`first name`"}, // space in name
		{"user`data", "`user``data`"},  // backtick in name
		{"a`b`c", "`a``b``c`"},         // multiple backticks
		{"", "``"},                     // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifier(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestQuoteIdentifierANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"employee", `"employee"`},
		{"company_id", `"company_id"`},
		{`odd"name`, `"odd""name"`},
		{"", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := QuoteIdentifierANSI(tt.input)
			if result != tt.expected {
				t.Errorf("QuoteIdentifierANSI(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestQualify(t *testing.T) {
	if got := Qualify(QuoteIdentifier, "t0", "id"); got != "`t0`.`id`" {
		t.Errorf("Qualify with alias = %q", got)
	}
	if got := Qualify(QuoteIdentifier, "", "id"); got != "`id`" {
		t.Errorf("Qualify without alias = %q", got)
	}
	got := QualifyAll(QuoteIdentifierANSI, "o", []string{"a", "b"})
	if len(got) != 2 || got[0] != `"o"."a"` || got[1] != `"o"."b"` {
		t.Errorf("QualifyAll = %v", got)
	}
}
