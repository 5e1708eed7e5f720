package rewriter

import (
	"html"
	"regexp"
	"strings"
)

var (
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style|noscript|figure|figcaption|iframe)[^>]*>.*?</(script|style|noscript|figure|figcaption|iframe)>`)
	breakRe     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|blockquote|section|article|tr)>|<br\s*/?>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	// Boilerplate lines sources append to articles.
	boilerplateRe  = regexp.MustCompile(`(?i)^(source|sumber|editor|penulis|writer|reporter|baca juga|read also|read more|foto|photo|image|gambar|credit|kredit)\s*:`)
	inlineCreditRe = regexp.MustCompile(`(?i)\s*\((source|sumber|foto|photo)\s*:[^)]*\)`)
)

// Paragraphs turns raw HTML or text into clean paragraphs: markup and
// boilerplate removed, whitespace collapsed.
func Paragraphs(raw string) []string {
	s := dropBlockRe.ReplaceAllString(raw, "\n")
	s = breakRe.ReplaceAllString(s, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || boilerplateRe.MatchString(line) {
			continue
		}
		line = inlineCreditRe.ReplaceAllString(line, "")
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Clean returns the cleaned text as a single string with blank-line
// separated paragraphs.
func Clean(raw string) string {
	return strings.Join(Paragraphs(raw), "\n\n")
}

// toHTML wraps paragraphs in <p> tags, escaping their text.
func toHTML(paragraphs []string) string {
	var b strings.Builder
	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if strings.HasPrefix(p, "<h3>") {
			b.WriteString(p)
		} else {
			b.WriteString("<p>")
			b.WriteString(html.EscapeString(p))
			b.WriteString("</p>")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func heading(text string) string {
	return "<h3>" + html.EscapeString(text) + "</h3>"
}
