package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// CSSEngine evaluates CSS selectors via goquery.
type CSSEngine struct{}

// NewCSSEngine creates the CSS selector engine.
func NewCSSEngine() *CSSEngine {
	return &CSSEngine{}
}

func (e *CSSEngine) Name() string { return "css" }

func (e *CSSEngine) Validate(expr string) error {
	_, err := cascadia.Compile(expr)
	return err
}

func (e *CSSEngine) Load(body []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &cssDocument{doc: doc}, nil
}

// NewCSSDocument wraps an already parsed goquery document.
func NewCSSDocument(doc *goquery.Document) Document {
	return &cssDocument{doc: doc}
}

type cssDocument struct {
	doc *goquery.Document
}

func (d *cssDocument) Find(expr string) ([]Node, error) {
	sel, err := cascadia.Compile(expr)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	d.doc.FindMatcher(sel).Each(func(i int, s *goquery.Selection) {
		nodes = append(nodes, cssNode{sel: s})
	})
	return nodes, nil
}

type cssNode struct {
	sel *goquery.Selection
}

func (n cssNode) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n cssNode) HTML() string {
	h, _ := n.sel.Html()
	return strings.TrimSpace(h)
}

func (n cssNode) Attr(name string) (string, bool) {
	v, ok := n.sel.Attr(name)
	return strings.TrimSpace(v), ok
}
