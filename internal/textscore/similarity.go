package textscore

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Similarity scores how closely a and b match as bags of words, in [0, 1].
// Both sides are normalized first; if either is empty afterwards the score
// is 0.
//
// The score is a token-set ratio: word order and repeated words are
// ignored, and a text that is a word-subset of the other scores 1.
func Similarity(a, b string) (float64, error) {
	ta := tokenSet(NormalizeString(a))
	tb := tokenSet(NormalizeString(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}

	var inter, diffAB, diffBA []string
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter = append(inter, tok)
		} else {
			diffAB = append(diffAB, tok)
		}
	}
	for tok := range tb {
		if _, ok := ta[tok]; !ok {
			diffBA = append(diffBA, tok)
		}
	}
	slices.Sort(inter)
	slices.Sort(diffAB)
	slices.Sort(diffBA)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(diffAB, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(diffBA, " "))

	best := ratio(t0, t1)
	best = max(best, ratio(t0, t2))
	best = max(best, ratio(t1, t2))
	return best, nil
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// ratio is the indel similarity 2·lcs(x, y) / (|x| + |y|) over runes. Two
// empty strings are identical.
func ratio(x, y string) float64 {
	n := utf8.RuneCountInString(x) + utf8.RuneCountInString(y)
	if n == 0 {
		return 1
	}
	return 2 * float64(matchr.LongestCommonSubsequence(x, y)) / float64(n)
}
