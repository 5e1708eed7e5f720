// Package ai talks to the text-generation backends used to rewrite articles.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// LLMProvider specifies which LLM backend to use.
type LLMProvider string

const (
	ProviderOllama LLMProvider = "ollama"
	ProviderOpenAI LLMProvider = "openai"
	ProviderCustom LLMProvider = "custom"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// LLMConfig configures the LLM integration.
type LLMConfig struct {
	Provider    LLMProvider
	Endpoint    string // e.g. "http://localhost:11434" for Ollama
	Model       string // e.g. "llama3", "gpt-4o-mini"
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// ConfigFrom maps the ai config section onto an LLMConfig.
func ConfigFrom(cfg config.AIConfig) LLMConfig {
	return LLMConfig{
		Provider:    LLMProvider(cfg.Provider),
		Endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient communicates with an LLM. Every call is bounded by the
// configured timeout; a timeout is reported like any other failure.
type LLMClient struct {
	cfg    LLMConfig
	client *http.Client
	logger *slog.Logger
}

// NewLLMClient creates a new LLM client.
func NewLLMClient(cfg LLMConfig, logger *slog.Logger) *LLMClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &LLMClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With("component", "llm_client", "provider", string(cfg.Provider)),
	}
}

// Provider returns the configured backend.
func (c *LLMClient) Provider() string { return string(c.cfg.Provider) }

// Generate sends a system persona and a user prompt and returns the reply.
func (c *LLMClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var (
		out string
		err error
	)
	switch c.cfg.Provider {
	case ProviderOllama:
		out, err = c.generateOllama(ctx, system, prompt)
	case ProviderOpenAI:
		out, err = c.generateOpenAI(ctx, system, prompt)
	case ProviderCustom:
		out, err = c.generateCustom(ctx, system, prompt)
	default:
		err = fmt.Errorf("unsupported LLM provider: %s", c.cfg.Provider)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", types.ErrTimeout, err)
		}
		return "", &types.RewriteError{Provider: string(c.cfg.Provider), Err: err}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", &types.RewriteError{Provider: string(c.cfg.Provider), Err: types.ErrEmptyResponse}
	}
	c.logger.Debug("generation complete", "model", c.cfg.Model, "chars", len(out), "duration", time.Since(start))
	return out, nil
}

func (c *LLMClient) generateOllama(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]any{
		"model":  c.cfg.Model,
		"system": system,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
			"num_predict": c.cfg.MaxTokens,
		},
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, c.cfg.Endpoint+"/api/generate", payload, &result); err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	return result.Response, nil
}

func (c *LLMClient) generateOpenAI(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}

	endpoint := c.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	var result struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, endpoint+"/chat/completions", payload, &result); err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return result.Choices[0].Message.Content, nil
}

func (c *LLMClient) generateCustom(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]any{
		"model":       c.cfg.Model,
		"system":      system,
		"prompt":      prompt,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	}
	body, err := c.post(ctx, c.cfg.Endpoint, payload)
	if err != nil {
		return "", err
	}

	// JSON replies carry the text under "text" or "response"; anything else
	// is the text itself.
	var result struct {
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if json.Unmarshal(body, &result) == nil {
		if result.Text != "" {
			return result.Text, nil
		}
		if result.Response != "" {
			return result.Response, nil
		}
	}
	return string(body), nil
}

func (c *LLMClient) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := c.post(ctx, endpoint, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *LLMClient) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
