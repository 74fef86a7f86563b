package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hurttlocker/intake/internal/normalization"
)

const (
	minNameWords = 2
	maxNameWords = 6
)

// nameConnectives are lowercase particles kept inside a name.
var nameConnectives = map[string]bool{
	"de": true, "del": true, "la": true, "las": true, "los": true,
	"van": true, "von": true, "der": true, "da": true, "di": true, "du": true,
}

var defaultAffirmative = []string{"yes", "si", "sí"}

// nameLeadIns are self-introductions stripped before the heuristic runs,
// longest first.
var nameLeadIns = []string{
	"mi nombre completo es",
	"mi nombre es",
	"my name is",
	"me llamo",
	"soy",
}

// Name pulls a person's name out of a short answer. The message must have
// between two and six words, contain no "@", and not open with an
// affirmative token. Capitalized words and connective particles are kept;
// scanning stops at the first other word once a name word has been kept. At
// least two words must survive.
func Name(message string, affirmative []string) (string, bool) {
	msg := stripLeadIn(strings.TrimSpace(message))
	if msg == "" || strings.Contains(msg, "@") {
		return "", false
	}
	words := strings.Fields(msg)
	if len(words) < minNameWords || len(words) > maxNameWords {
		return "", false
	}
	if len(affirmative) == 0 {
		affirmative = defaultAffirmative
	}
	if startsWithAny(msg, affirmative) {
		return "", false
	}

	var kept []string
	nameWords := 0
	for _, raw := range words {
		w := strings.TrimLeft(strings.TrimRight(raw, ".,;:!?"), "¿¡")
		if w == "" {
			continue
		}
		if nameConnectives[strings.ToLower(w)] {
			kept = append(kept, w)
			continue
		}
		if isCapitalized(w) {
			kept = append(kept, w)
			nameWords++
			continue
		}
		if nameWords > 0 {
			break
		}
	}
	for len(kept) > 0 && nameConnectives[strings.ToLower(kept[len(kept)-1])] {
		kept = kept[:len(kept)-1]
	}
	if len(kept) < minNameWords {
		return "", false
	}
	return strings.Join(kept, " "), true
}

func stripLeadIn(msg string) string {
	folded := normalization.Fold(msg)
	for _, lead := range nameLeadIns {
		if !strings.HasPrefix(folded, lead+" ") {
			continue
		}
		// Fold keeps word count, so drop the same number of words.
		n := len(strings.Fields(lead))
		words := strings.Fields(msg)
		if len(words) <= n {
			return ""
		}
		return strings.Join(words[n:], " ")
	}
	return msg
}

func startsWithAny(msg string, tokens []string) bool {
	folded := normalization.Fold(msg)
	for _, tok := range tokens {
		t := normalization.Fold(strings.TrimSpace(tok))
		if t == "" || !strings.HasPrefix(folded, t) {
			continue
		}
		rest := folded[len(t):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isCapitalized(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}
