// Package textscore holds the text-side measurements of a presentation:
// word counts and speaking rate, transcript normalization and the fuzzy
// similarity between what was said and what was meant to be said.
package textscore

import "strings"

// CountWords returns the number of whitespace-separated words in text.
//
// Scripts without whitespace word boundaries are counted as one word per
// run; that limitation is accepted.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// WPM returns the speaking rate in words per minute. A non-positive duration
// yields 0.
func WPM(durationSeconds float64, wordCount int) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(wordCount) / (durationSeconds / 60)
}
