package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCityName_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
		{"newline", "\n "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCityName(tc.input, DefaultMinCityLen, DefaultMaxCityLen)
			if !errors.Is(err, ErrCityEmpty) {
				t.Errorf("error = %v, want ErrCityEmpty", err)
			}
		})
	}
}

func TestValidateCityName_Length(t *testing.T) {
	if _, err := ValidateCityName("x", 2, 100); !errors.Is(err, ErrCityTooShort) {
		t.Errorf("short: error = %v, want ErrCityTooShort", err)
	}
	if _, err := ValidateCityName(strings.Repeat("a", 101), 1, 100); !errors.Is(err, ErrCityTooLong) {
		t.Errorf("long: error = %v, want ErrCityTooLong", err)
	}
	// Bounds count runes, not bytes.
	if _, err := ValidateCityName(strings.Repeat("ü", 100), 1, 100); err != nil {
		t.Errorf("100 runes: error = %v, want nil", err)
	}
	if _, err := ValidateCityName(strings.Repeat("a", 500), 0, 0); err != nil {
		t.Errorf("no bounds: error = %v, want nil", err)
	}
}

func TestValidateCityName_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"backslash", "sea\\ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"ampersand", "sea&ttle"},
		{"semicolon", "Paris; DROP TABLE cities"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateCityName(tc.input, DefaultMinCityLen, DefaultMaxCityLen)
			if !errors.Is(err, ErrCityInvalidChars) {
				t.Errorf("error = %v, want ErrCityInvalidChars", err)
			}
		})
	}
}

func TestValidateCityName_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Paris", "Paris"},
		{"case preserved", "pARIS", "pARIS"},
		{"with space", "New York", "New York"},
		{"comma", "London,uk", "London,uk"},
		{"hyphen", "Aix-en-Provence", "Aix-en-Provence"},
		{"period", "St. Louis", "St. Louis"},
		{"apostrophe", "L'Aquila", "L'Aquila"},
		{"trimmed", "  Boston  ", "Boston"},
		{"unicode", "Zürich", "Zürich"},
		{"combining mark", "Zürich", "Zürich"},
		{"digits", "Area51", "Area51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateCityName(tc.input, DefaultMinCityLen, DefaultMaxCityLen)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
