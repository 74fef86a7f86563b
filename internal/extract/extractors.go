package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hurttlocker/intake/internal/normalization"
)

var (
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`[+(]?[1-9][0-9 .\-()]{8,}[0-9]`)
	digitRE = regexp.MustCompile(`\d+`)
)

// Email returns the first email address in message, case preserved.
func Email(message string) (string, bool) {
	m := emailRE.FindString(message)
	return m, m != ""
}

// Phone returns the first phone-like digit run in message, trimmed.
func Phone(message string) (string, bool) {
	m := strings.TrimSpace(phoneRE.FindString(message))
	return m, m != ""
}

// YesNo classifies message as an affirmative or negative answer. Affirmative
// tokens are checked first, so "No, but yes I can" is affirmative. Tokens
// match on word boundaries after folding case and accents.
func YesNo(message string, affirmative, negative []string) (answer bool, ok bool) {
	if _, hit := normalization.FirstPhrase(message, affirmative); hit {
		return true, true
	}
	if _, hit := normalization.FirstPhrase(message, negative); hit {
		return false, true
	}
	return false, false
}

// Verbatim returns the trimmed message.
func Verbatim(message string) (string, bool) {
	s := strings.TrimSpace(message)
	return s, s != ""
}

var numberWords = map[string]int{
	"cero": 0, "ninguna": 0, "ninguno": 0, "nadie": 0,
	"uno": 1, "una": 1, "un": 1,
	"dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
	"zero": 0, "none": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Integer returns the first whole number in message, written either with
// digits or as a number word up to ten.
func Integer(message string) (int, bool) {
	if m := digitRE.FindString(message); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n, true
		}
	}
	for _, w := range strings.FieldsFunc(normalization.Fold(message), isSeparator) {
		if n, ok := numberWords[w]; ok {
			return n, true
		}
	}
	return 0, false
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', ';', ':', '!', '?', '¿', '¡', '(', ')':
		return true
	}
	return false
}
