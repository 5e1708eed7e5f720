package parser

import (
	"log/slog"
	"strings"
)

// Page answers selector queries against one fetched document. Each engine
// parses the body at most once.
type Page struct {
	parser *Parser
	body   []byte
	url    string
	docs   map[string]Document
	logger *slog.Logger
}

// URL returns the address the page was fetched from.
func (p *Page) URL() string { return p.url }

// Find returns every node matching selector. Invalid selectors and parse
// failures are logged and match nothing.
func (p *Page) Find(selector string) []Node {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	name, expr := Split(selector)
	doc, err := p.document(name)
	if err != nil {
		p.logger.Warn("document load failed", "engine", name, "error", err)
		return nil
	}
	nodes, err := doc.Find(expr)
	if err != nil {
		p.logger.Warn("selector failed", "selector", selector, "error", err)
		return nil
	}
	return nodes
}

func (p *Page) document(name string) (Document, error) {
	if doc, ok := p.docs[name]; ok {
		return doc, nil
	}
	e, ok := p.parser.Engine(name)
	if !ok {
		return nil, &unknownEngineError{name: name}
	}
	doc, err := e.Load(p.body)
	if err != nil {
		return nil, err
	}
	p.docs[name] = doc
	return doc, nil
}

// Text returns the text of the first non-empty match.
func (p *Page) Text(selector string) string {
	for _, n := range p.Find(selector) {
		if t := collapseSpace(n.Text()); t != "" {
			return t
		}
	}
	return ""
}

// HTML returns the inner markup of the first non-empty match.
func (p *Page) HTML(selector string) string {
	for _, n := range p.Find(selector) {
		if h := n.HTML(); h != "" {
			return h
		}
	}
	return ""
}

// Attr returns the first non-empty value among attrs on the matches, in
// match order. When no attribute is set the node text is used if fallbackText
// is true.
func (p *Page) Attr(selector string, fallbackText bool, attrs ...string) string {
	for _, n := range p.Find(selector) {
		for _, a := range attrs {
			if v, ok := n.Attr(a); ok && v != "" {
				return v
			}
		}
		if fallbackText {
			if t := collapseSpace(n.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// Links returns the absolute http(s) URLs referenced by matches of selector,
// in document order, without fragments and without duplicates.
func (p *Page) Links(selector string) []string {
	var links []string
	seen := make(map[string]bool)
	for _, n := range p.Find(selector) {
		href, ok := n.Attr("href")
		if !ok {
			// XPath selectors may point straight at the attribute.
			href = n.Text()
		}
		abs := p.Resolve(href)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		links = append(links, abs)
	}
	return links
}

// Resolve turns ref into an absolute URL relative to the page. Non-http
// references resolve to "".
func (p *Page) Resolve(ref string) string {
	return ResolveURL(p.url, ref)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type unknownEngineError struct {
	name string
}

func (e *unknownEngineError) Error() string {
	return "no query engine " + e.name
}
