// Package parser evaluates per-source selector expressions against fetched
// pages. Backends (CSS via goquery, XPath via htmlquery) sit behind the Engine
// interface and are picked per selector, so a source can mix both.
package parser

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// Engine is an HTML query backend.
type Engine interface {
	// Name is the prefix that routes a selector to this engine ("css", "xpath").
	Name() string

	// Validate reports whether expr is a well-formed expression.
	Validate(expr string) error

	// Load parses a page body.
	Load(body []byte) (Document, error)
}

// Document is a page parsed by one engine.
type Document interface {
	Find(expr string) ([]Node, error)
}

// Node is a single match.
type Node interface {
	Text() string
	HTML() string
	Attr(name string) (string, bool)
}

// Parser routes selectors to registered engines.
type Parser struct {
	mu      sync.RWMutex
	engines map[string]Engine
	logger  *slog.Logger
}

// New creates a Parser with the CSS and XPath engines registered.
func New(logger *slog.Logger) *Parser {
	p := &Parser{
		engines: make(map[string]Engine),
		logger:  logger.With("component", "parser"),
	}
	p.Register(NewCSSEngine())
	p.Register(NewXPathEngine())
	return p
}

// Register adds or replaces an engine.
func (p *Parser) Register(e Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engines[e.Name()] = e
}

// Engine returns the engine registered under name.
func (p *Parser) Engine(name string) (Engine, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.engines[name]
	return e, ok
}

// Split separates a selector into engine name and expression.
//
//	"xpath://h1"      -> xpath, //h1
//	"css:h1.title"    -> css, h1.title
//	"//div[@id='a']"  -> xpath, //div[@id='a']
//	"article h2 a"    -> css, article h2 a
func Split(selector string) (engine, expr string) {
	s := strings.TrimSpace(selector)
	if name, rest, ok := strings.Cut(s, ":"); ok && !strings.ContainsAny(name, " .#[>(/") {
		switch name {
		case "css", "xpath":
			return name, strings.TrimSpace(rest)
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "(") {
		return "xpath", s
	}
	return "css", s
}

// Validate checks a single selector. Empty selectors are valid and match
// nothing.
func (p *Parser) Validate(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	name, expr := Split(selector)
	e, ok := p.Engine(name)
	if !ok {
		return fmt.Errorf("no query engine %q for selector %q", name, selector)
	}
	if err := e.Validate(expr); err != nil {
		return &types.ParseError{Selector: selector, Err: err}
	}
	return nil
}

// ValidateSelectors checks every selector of a source configuration.
func (p *Parser) ValidateSelectors(s types.Selectors) error {
	if err := p.Validate(s.ArticleLinks); err != nil {
		return fmt.Errorf("article_links: %w", err)
	}
	for field, sel := range s.Fields() {
		if err := p.Validate(sel); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// Page parses body lazily per engine and answers selector queries.
func (p *Parser) Page(body []byte, pageURL string) *Page {
	return &Page{
		parser: p,
		body:   body,
		url:    pageURL,
		docs:   make(map[string]Document),
		logger: p.logger.With("url", pageURL),
	}
}
