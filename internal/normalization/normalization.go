// Package normalization folds free text into a form that can be compared
// against keyword tables: canonical decomposition, nonspacing marks removed,
// case folded. "Ubicación", "UBICACION" and "ubicacion" all fold to the same
// string.
package normalization

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s decomposed (NFD), stripped of nonspacing marks and case
// folded. Transformers carry state, so a fresh chain is built per call.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

// Contains reports whether needle occurs in haystack after folding both.
func Contains(haystack, needle string) bool {
	n := Fold(strings.TrimSpace(needle))
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}

// ContainsAny returns the first needle (in the given order) contained in
// haystack, and whether one was found.
func ContainsAny(haystack string, needles []string) (string, bool) {
	h := Fold(haystack)
	for _, n := range needles {
		fn := Fold(strings.TrimSpace(n))
		if fn != "" && strings.Contains(h, fn) {
			return n, true
		}
	}
	return "", false
}

// HasPhrase reports whether phrase occurs in text on word boundaries, after
// folding both. "no" is found in "No, gracias" but not in "nombre".
func HasPhrase(text, phrase string) bool {
	return hasFoldedPhrase(Fold(text), Fold(strings.TrimSpace(phrase)))
}

// FirstPhrase returns the first phrase of the list present in text on word
// boundaries.
func FirstPhrase(text string, phrases []string) (string, bool) {
	folded := Fold(text)
	for _, p := range phrases {
		if hasFoldedPhrase(folded, Fold(strings.TrimSpace(p))) {
			return p, true
		}
	}
	return "", false
}

func hasFoldedPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	from := 0
	for from <= len(text)-len(phrase) {
		idx := strings.Index(text[from:], phrase)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(phrase)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := []rune(s[i:])[0]
	return !isWordRune(r)
}

func lastRune(s string) rune {
	rs := []rune(s)
	if len(rs) == 0 {
		return ' '
	}
	return rs[len(rs)-1]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
