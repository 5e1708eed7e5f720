package parser

import (
	"encoding/json"
	"strings"
)

// Meta holds the article metadata a page advertises through OpenGraph,
// JSON-LD and standard meta tags. It backs fields a source's selectors miss.
type Meta struct {
	Title       string
	Description string
	Image       string
	Author      string
	Published   string
}

// Meta extracts page metadata. JSON-LD wins over OpenGraph, which wins over
// plain meta tags and <title>.
func (p *Page) Meta() Meta {
	var m Meta
	for _, raw := range p.textsOf(`script[type="application/ld+json"]`) {
		for _, obj := range decodeJSONLD(raw) {
			fillFromJSONLD(&m, obj)
		}
	}

	fill(&m.Title, p.Attr(`meta[property="og:title"]`, false, "content"))
	fill(&m.Description, p.Attr(`meta[property="og:description"]`, false, "content"))
	fill(&m.Image, p.Resolve(p.Attr(`meta[property="og:image"]`, false, "content")))
	fill(&m.Published, p.Attr(`meta[property="article:published_time"]`, false, "content"))
	fill(&m.Author, p.Attr(`meta[property="article:author"]`, false, "content"))

	fill(&m.Title, p.Attr(`meta[name="twitter:title"]`, false, "content"))
	fill(&m.Image, p.Resolve(p.Attr(`meta[name="twitter:image"]`, false, "content")))
	fill(&m.Description, p.Attr(`meta[name="description"]`, false, "content"))
	fill(&m.Author, p.Attr(`meta[name="author"]`, false, "content"))
	fill(&m.Published, p.Attr(`meta[itemprop="datePublished"], time[datetime]`, false, "content", "datetime"))
	fill(&m.Title, p.Text("title"))
	return m
}

func (p *Page) textsOf(selector string) []string {
	var out []string
	for _, n := range p.Find(selector) {
		if t := n.Text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func decodeJSONLD(raw string) []map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		if graph, ok := obj["@graph"].([]any); ok {
			return objects(graph)
		}
		return []map[string]any{obj}
	}
	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return objects(arr)
	}
	return nil
}

func objects(in []any) []map[string]any {
	var out []map[string]any
	for _, v := range in {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

var articleTypes = map[string]bool{
	"Article":           true,
	"NewsArticle":       true,
	"BlogPosting":       true,
	"ReviewNewsArticle": true,
}

func fillFromJSONLD(m *Meta, obj map[string]any) {
	t, _ := obj["@type"].(string)
	if !articleTypes[t] {
		return
	}
	fill(&m.Title, str(obj["headline"]))
	fill(&m.Description, str(obj["description"]))
	fill(&m.Published, str(obj["datePublished"]))
	fill(&m.Image, str(obj["image"]))
	fill(&m.Author, str(obj["author"]))
}

// str flattens the string, object-with-name/url and array shapes JSON-LD
// uses for the same property.
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if s := str(x["name"]); s != "" {
			return s
		}
		return str(x["url"])
	case []any:
		for _, e := range x {
			if s := str(e); s != "" {
				return s
			}
		}
	}
	return ""
}
