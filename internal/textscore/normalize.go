package textscore

import (
	"strings"
	"unicode"

	"github.com/MrWong99/speechscore/internal/apperr"
)

// Normalize lower-cases text and strips every rune that is not a letter, a
// digit or whitespace. A non-string value, nil included, is an input error.
func Normalize(text any) (string, error) {
	s, ok := text.(string)
	if !ok {
		return "", apperr.Input("normalize", "expected string, got %T", text)
	}
	return NormalizeString(s), nil
}

// NormalizeString is [Normalize] for a value already known to be a string.
// Hangul, Latin and other letters survive; whitespace between words is kept
// as-is so word boundaries do not move. Text left with no letter or digit
// normalizes to "".
func NormalizeString(text string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, text)
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out
}
