// Package slug turns capture titles into URL-safe identifiers that are unique
// across the whole store.
package slug

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when a title contains no characters that survive folding.
const Fallback = "note"

// Checker reports whether a slug is already taken. exceptID excludes one note
// from the check so a note can be re-slugged without colliding with itself.
type Checker interface {
	SlugExists(ctx context.Context, slug string, exceptID int64) (bool, error)
}

// Make folds title into a lowercase, hyphenated ASCII token.
//
// Diacritics are stripped, "@" becomes "at", whitespace, "-" and "_" act as
// separators and any other character is dropped. Make performs no uniqueness
// check; it is also the slug-equivalent used when resolving references.
func Make(title string) string {
	// transform.Chain keeps internal state, so build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(fold, title)
	if err != nil {
		s = title
	}
	s = strings.ReplaceAll(strings.ToLower(s), "@", " at ")

	var b strings.Builder
	sep := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			sep = true
		}
	}
	if b.Len() == 0 {
		return Fallback
	}
	return b.String()
}

// Generate returns Make(title), suffixed with -1, -2, ... until c reports the
// token as free. c must be the transaction that will persist the note.
func Generate(ctx context.Context, c Checker, title string) (string, error) {
	return GenerateExcept(ctx, c, title, 0)
}

// GenerateExcept is Generate for a note that already exists: its own current
// slug does not count as a collision.
func GenerateExcept(ctx context.Context, c Checker, title string, exceptID int64) (string, error) {
	base := Make(title)
	candidate := base
	for n := 1; ; n++ {
		taken, err := c.SlugExists(ctx, candidate, exceptID)
		if err != nil {
			return "", fmt.Errorf("slug: check %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}
