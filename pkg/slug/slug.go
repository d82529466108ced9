// Package slug derives URL-safe ASCII identifiers from arbitrary
// Unicode titles. Uniqueness is not handled here; callers probe their
// own storage for collisions.
package slug

import (
	"crypto/rand"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var multiHyphen = regexp.MustCompile(`-{2,}`)

// Make converts a Unicode string into a lower-case ASCII slug:
// accents are decomposed and stripped, anything outside [a-z0-9] becomes
// a hyphen, and runs of hyphens collapse. Input with no representable
// characters (e.g. a fully CJK title) yields an empty string; callers
// fall back to Random.
func Make(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	decomposed, _, err := transform.String(t, s)
	if err != nil {
		decomposed = s
	}

	lowered := strings.ToLower(decomposed)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	out := multiHyphen.ReplaceAllString(b.String(), "-")
	return strings.Trim(out, "-")
}

const randomAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Random returns a random slug base of n lower-case alphanumerics, used
// when Make produces an empty string.
func Random(n int) string {
	if n <= 0 {
		n = 8
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; a fixed
		// base still yields a valid (if collision-prone) slug.
		return strings.Repeat("x", n)
	}
	for i, b := range buf {
		buf[i] = randomAlphabet[int(b)%len(randomAlphabet)]
	}
	return string(buf)
}
