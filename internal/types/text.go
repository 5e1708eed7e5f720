package types

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	blockEndRe    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|blockquote|section|article)>|<br\s*/?>`)
)

// StripTags removes markup, decodes entities and collapses whitespace.
func StripTags(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = blockEndRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// TextLength is the number of characters left after StripTags.
func TextLength(s string) int {
	return len([]rune(StripTags(s)))
}

// Truncate shortens s to at most limit characters, cutting on a word
// boundary where possible and ending with "...".
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if limit <= 0 {
		return ""
	}
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	cut := r[:limit-3]
	if i := lastSpace(cut); i > len(cut)/2 {
		cut = cut[:i]
	}
	out := strings.TrimRightFunc(string(cut), func(c rune) bool {
		return unicode.IsSpace(c) || unicode.IsPunct(c)
	})
	return out + "..."
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if unicode.IsSpace(r[i]) {
			return i
		}
	}
	return -1
}

// Slugify lowercases s, strips diacritics and joins ASCII alphanumeric runs
// with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// NormalizeTitle is the comparison key used to detect duplicate titles.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(StripTags(title))), " ")
}
