package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SmillingSword/news-reynra/internal/types"
)

// DryRunRecord is what a dry-run scrape would have persisted for one
// candidate.
type DryRunRecord struct {
	Source     string              `json:"source"`
	Slug       string              `json:"slug"`
	Candidate  types.Candidate     `json:"candidate"`
	Rewrite    types.RewriteResult `json:"rewrite"`
	Categories []string            `json:"categories,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// JSONLSink writes dry-run records as newline-delimited JSON.
type JSONLSink struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLSink creates (or truncates) the file at outputPath.
func NewJSONLSink(outputPath string, logger *slog.Logger) (*JSONLSink, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &JSONLSink{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "jsonl_sink"),
	}, nil
}

func (s *JSONLSink) Write(rec DryRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode JSONL: %w", err)
	}
	s.count++
	return nil
}

// Count returns the number of records written.
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *JSONLSink) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
