package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/types"
)

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dry-run.jsonl")
	sink, err := NewJSONLSink(path, testLogger)
	require.NoError(t, err)

	for _, title := range []string{"Satu", "Dua"} {
		require.NoError(t, sink.Write(DryRunRecord{
			Source:    "gamebrott",
			Slug:      types.Slugify(title),
			Candidate: types.Candidate{Title: title, URL: "https://gamebrott.com/" + title},
			Rewrite:   types.RewriteResult{Title: title, RewrittenBy: types.RewrittenByFallback},
			Timestamp: t0,
		}))
	}
	assert.Equal(t, 2, sink.Count())
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var recs []DryRunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r DryRunRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		recs = append(recs, r)
	}
	require.Len(t, recs, 2)
	assert.Equal(t, "dua", recs[1].Slug)
	assert.Equal(t, types.RewrittenByFallback, recs[0].Rewrite.RewrittenBy)
}
