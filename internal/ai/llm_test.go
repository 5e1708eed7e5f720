package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestOpenAIGenerate(t *testing.T) {
	var got struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
		MaxTokens   int       `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  JUDUL: Halo  "}}]}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{
		Provider: ProviderOpenAI, Endpoint: srv.URL, Model: "gpt-4o-mini",
		APIKey: "sk-test", Temperature: 0.7, MaxTokens: 2000, Timeout: time.Second,
	}, testLogger)

	out, err := c.Generate(context.Background(), "persona", "tulis ulang")
	require.NoError(t, err)
	assert.Equal(t, "JUDUL: Halo", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 2000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, Message{Role: "system", Content: "persona"}, got.Messages[0])
	assert.Equal(t, "tulis ulang", got.Messages[1].Content)
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_, _ = w.Write([]byte(`{"response":"KONTEN: isi"}`))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOllama, Endpoint: srv.URL, Model: "llama3"}, testLogger)
	out, err := c.Generate(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "KONTEN: isi", out)
}

func TestCustomGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain reply"))
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderCustom, Endpoint: srv.URL}, testLogger)
	out, err := c.Generate(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "plain reply", out)
}

func TestGenerateFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
		"empty content": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			c := NewLLMClient(LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, Timeout: time.Second}, testLogger)
			_, err := c.Generate(context.Background(), "s", "p")
			var re *types.RewriteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "openai", re.Provider)
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewLLMClient(LLMConfig{Provider: ProviderOpenAI, Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, testLogger)
	_, err := c.Generate(context.Background(), "s", "p")
	require.Error(t, err)
}

func TestUnsupportedProvider(t *testing.T) {
	c := NewLLMClient(LLMConfig{Provider: "bard"}, testLogger)
	_, err := c.Generate(context.Background(), "s", "p")
	assert.Error(t, err)
}
