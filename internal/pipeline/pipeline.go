// Package pipeline runs extracted candidates through a chain of middleware
// before they reach the rewriter.
package pipeline

import (
	"log/slog"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// Middleware processes a candidate and returns the (possibly modified)
// candidate. Return nil to drop it.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a candidate. Return nil to drop the candidate.
	Process(c *types.Candidate) (*types.Candidate, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the candidate through all middleware in order. The input is
// not modified.
func (p *Pipeline) Process(c *types.Candidate) (*types.Candidate, error) {
	current := c.Clone()

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:     mw.Name(),
				Candidate: current,
				Err:       err,
			}
		}
		if result == nil {
			p.logger.Debug("candidate dropped", "stage", mw.Name(), "url", c.URL)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Run processes every candidate and returns the survivors in input order.
// Candidates whose processing fails are logged and dropped.
func (p *Pipeline) Run(candidates []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, 0, len(candidates))
	for i := range candidates {
		result, err := p.Process(&candidates[i])
		if err != nil {
			p.logger.Warn("candidate rejected", "url", candidates[i].URL, "error", err)
			continue
		}
		if result != nil {
			out = append(out, *result)
		}
	}
	return out
}
