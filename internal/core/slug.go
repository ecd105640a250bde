package core

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify converts free text into a lowercase ASCII slug with words joined by
// single hyphens. Any script is transliterated first, so "Борщ" and "Щи"
// stay distinct. It never fails and Slugify(Slugify(s)) == Slugify(s).
//
//	Slugify("Crème brûlée")                    // "creme-brulee"
//	Slugify("Fondant à la crème & au chocolat!") // "fondant-a-la-creme-au-chocolat"
//	Slugify("Soupe Борщ")                      // "soupe-borshch"
func Slugify(s string) string {
	// NFKD folds compatibility forms such as fullwidth letters; transform.Chain
	// keeps per-call state, so build it per call
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	ascii := unidecode.Unidecode(stripped)

	var b strings.Builder
	b.Grow(len(ascii))
	pendingHyphen := false

	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		switch {
		case c >= 'A' && c <= 'Z':
			c += 'a' - 'A'
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			pendingHyphen = true
			continue
		}
		if pendingHyphen && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingHyphen = false
		b.WriteByte(c)
	}

	return b.String()
}

// Sluggable is implemented by entities whose slug is derived from a title.
type Sluggable interface {
	SlugSource() string
	SetSlug(string)
}

// ApplySlug is the pre-save hook for sluggable entities.
func ApplySlug(e Entity) {
	if s, ok := e.(Sluggable); ok {
		s.SetSlug(Slugify(s.SlugSource()))
	}
}
