// Package lang holds the canonical table of supported languages and the
// resolution rules used by "$ set language" and "$ translate to".
package lang

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownLanguage is returned by Resolve when no canonical language
// matches the input.
var ErrUnknownLanguage = errors.New("unknown language")

// Language is one supported language.
type Language struct {
	Code string // ISO 639-3, e.g. "lug"
	Name string // English display name, e.g. "Luganda"
}

// String renders the language as "Luganda (lug)".
func (l Language) String() string {
	return fmt.Sprintf("%s (%s)", l.Name, l.Code)
}

// canonical is the iteration order used by every lookup and listing.
var canonical = []Language{
	{Code: "eng", Name: "English"},
	{Code: "lug", Name: "Luganda"},
	{Code: "ach", Name: "Acholi"},
	{Code: "teo", Name: "Ateso"},
	{Code: "lgg", Name: "Lugbara"},
	{Code: "nyn", Name: "Runyankole"},
}

// Default is the language assigned to users who have never set one.
const Default = "eng"

// All returns the canonical languages in canonical order.
func All() []Language {
	out := make([]Language, len(canonical))
	copy(out, canonical)
	return out
}

// Lookup returns the language with the given code.
func Lookup(code string) (Language, bool) {
	for _, l := range canonical {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// NameOf returns the display name for code, or code itself when unknown.
func NameOf(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Name
	}
	return code
}

// Resolve maps free-form user input to a canonical language.
//
// Passes, first success wins:
//  1. exact code ("lug")
//  2. exact case-insensitive name ("luganda")
//  3. name prefix ("lugb" -> Lugbara)
//  4. name infix ("ganda" -> Luganda)
//
// Within a pass the first language in canonical order wins, so "lu" resolves
// to Luganda rather than Lugbara.
func Resolve(input string) (Language, error) {
	q := Fold(input)
	if q == "" {
		return Language{}, ErrUnknownLanguage
	}
	for _, l := range canonical {
		if q == l.Code {
			return l, nil
		}
	}
	for _, l := range canonical {
		if q == Fold(l.Name) {
			return l, nil
		}
	}
	for _, l := range canonical {
		if strings.HasPrefix(Fold(l.Name), q) {
			return l, nil
		}
	}
	for _, l := range canonical {
		if strings.Contains(Fold(l.Name), q) {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, input)
}

// Listing renders every canonical language, one "Name (code)" per line.
func Listing() string {
	var sb strings.Builder
	for i, l := range canonical {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("• ")
		sb.WriteString(l.String())
	}
	return sb.String()
}

// Fold normalises s for case-insensitive comparison: NFKC, Unicode case
// folding, and whitespace collapsed to single spaces. A Caser is stateful,
// so each call gets its own.
func Fold(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}
