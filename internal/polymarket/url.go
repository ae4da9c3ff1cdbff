package polymarket

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const eventBaseURL = "https://polymarket.com/event/"

// MakeEventURL derives the public event URL from its id and slug, falling
// back to a slug of the title.
func MakeEventURL(id, slug, title string) string {
	if slug == "" {
		slug = Slugify(title)
	}
	return fmt.Sprintf("%s%s?tid=%s", eventBaseURL, url.PathEscape(slug), url.QueryEscape(id))
}

// Slugify lowercases s, folds accents to ASCII and joins the remaining
// alphanumeric runs with single hyphens.
func Slugify(s string) string {
	folder := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
