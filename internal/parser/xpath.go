package parser

import (
	"bytes"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// XPathEngine evaluates XPath expressions via htmlquery.
type XPathEngine struct{}

// NewXPathEngine creates the XPath engine.
func NewXPathEngine() *XPathEngine {
	return &XPathEngine{}
}

func (e *XPathEngine) Name() string { return "xpath" }

func (e *XPathEngine) Validate(expr string) error {
	_, err := xpath.Compile(expr)
	return err
}

func (e *XPathEngine) Load(body []byte) (Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &xpathDocument{root: root}, nil
}

type xpathDocument struct {
	root *html.Node
}

func (d *xpathDocument) Find(expr string) ([]Node, error) {
	found, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(found))
	for _, n := range found {
		nodes = append(nodes, xpathNode{n: n})
	}
	return nodes, nil
}

type xpathNode struct {
	n *html.Node
}

func (x xpathNode) Text() string {
	return strings.TrimSpace(htmlquery.InnerText(x.n))
}

func (x xpathNode) HTML() string {
	// attribute nodes selected with //a/@href have no markup of their own
	if x.n.Type == html.TextNode || x.n.Data == "" {
		return x.Text()
	}
	return strings.TrimSpace(htmlquery.OutputHTML(x.n, false))
}

func (x xpathNode) Attr(name string) (string, bool) {
	for _, a := range x.n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}
