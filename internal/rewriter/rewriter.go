// Package rewriter turns scraped article text into an original Indonesian
// article, through a language model when one is configured and through
// deterministic templates otherwise.
package rewriter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Output budgets.
const (
	ExcerptLimit         = 200
	MetaDescriptionLimit = 160
	TitleLimit           = 120
)

// Generator produces text from a persona and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Provider() string
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithObserver registers a callback invoked with the attribution of every
// result.
func WithObserver(fn func(rewrittenBy string)) Option {
	return func(r *Rewriter) { r.observe = fn }
}

// Rewriter tries the model first and falls back to templates on any
// failure. Consecutive model failures open a circuit breaker so an outage
// does not cost a timeout per article.
type Rewriter struct {
	gen      Generator
	breaker  *gobreaker.CircuitBreaker
	fallback *Fallback
	observe  func(string)
	logger   *slog.Logger
}

// New creates a Rewriter. gen may be nil, in which case every rewrite uses
// the fallback.
func New(gen Generator, fallback *Fallback, cfg config.AIConfig, logger *slog.Logger, opts ...Option) *Rewriter {
	r := &Rewriter{
		gen:      gen,
		fallback: fallback,
		logger:   logger.With("component", "rewriter"),
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rewrite-model",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("rewrite circuit state changed", "from", from.String(), "to", to.String())
		},
	})

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite returns a rewritten article. It never fails: any model problem,
// including a missing model, yields the template rewrite.
func (r *Rewriter) Rewrite(ctx context.Context, raw, title, category string) types.RewriteResult {
	res, err := r.primary(ctx, raw, title, category)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, types.ErrRewriteDisabled) {
			r.logger.Debug("using fallback rewrite", "reason", err)
		} else {
			r.logger.Warn("model rewrite failed, using fallback", "title", title, "error", err)
		}
		res = r.fallback.Rewrite(raw, title, category)
	}
	if r.observe != nil {
		r.observe(res.RewrittenBy)
	}
	return res
}

func (r *Rewriter) primary(ctx context.Context, raw, title, category string) (types.RewriteResult, error) {
	if r.gen == nil {
		return types.RewriteResult{}, types.ErrRewriteDisabled
	}
	cleaned := Clean(raw)
	if cleaned == "" {
		return types.RewriteResult{}, types.ErrEmptyResponse
	}
	prompt := buildPrompt(cleaned, types.StripTags(title), category)

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.gen.Generate(ctx, Persona, prompt)
	})
	if err != nil {
		return types.RewriteResult{}, err
	}

	rep := parseReply(out.(string))
	content := toHTML(Paragraphs(markdownToBreaks(rep.Content)))
	if content == "" {
		return types.RewriteResult{}, &types.RewriteError{Provider: r.gen.Provider(), Err: types.ErrEmptyResponse}
	}

	newTitle := types.StripTags(rep.Title)
	if newTitle == "" {
		newTitle = types.StripTags(title)
	}
	excerpt := types.StripTags(rep.Excerpt)
	if excerpt == "" {
		excerpt = types.StripTags(content)
	}

	return types.RewriteResult{
		Title:          types.Truncate(newTitle, TitleLimit),
		Excerpt:        types.Truncate(excerpt, ExcerptLimit),
		Content:        content,
		RewrittenBy:    types.RewrittenByModel,
		OriginalLength: types.TextLength(raw),
		RewriteLength:  types.TextLength(content),
	}, nil
}

// markdownToBreaks keeps the paragraph structure of a plain-text reply and
// drops markdown emphasis markers.
func markdownToBreaks(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimLeft(strings.TrimSpace(l), "#*- ")
	}
	return strings.Join(lines, "\n")
}

// MetaDescription is the excerpt cut to the meta description budget.
func MetaDescription(res types.RewriteResult) string {
	return types.Truncate(types.StripTags(res.Excerpt), MetaDescriptionLimit)
}
