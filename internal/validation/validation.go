package validation

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrCityEmpty        = errors.New("city is required")
	ErrCityTooShort     = errors.New("city name too short")
	ErrCityTooLong      = errors.New("city name too long")
	ErrCityInvalidChars = errors.New("city name contains invalid characters")
)

// Default bounds in runes for watchlist city names.
const (
	DefaultMinCityLen = 1
	DefaultMaxCityLen = 100
)

// ValidateCityName trims the input, enforces length bounds (minLen, maxLen in runes;
// zero disables a bound) and restricts characters to Unicode letters, digits,
// space, comma, hyphen, period and apostrophe. Returns the trimmed name with
// case preserved.
func ValidateCityName(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrCityEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrCityTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if !isAllowedCityRune(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

func isAllowedCityRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}
