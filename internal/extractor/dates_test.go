package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SmillingSword/news-reynra/internal/clock"
)

func TestDateParser(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	p := NewDateParser(jakarta, clock.NewFake(epoch), testLogger)

	cases := map[string]time.Time{
		"2024-01-15 10:30:00":              time.Date(2024, 1, 15, 10, 30, 0, 0, jakarta),
		"15/01/2024 10:30":                 time.Date(2024, 1, 15, 10, 30, 0, 0, jakarta),
		"15-01-2024":                       time.Date(2024, 1, 15, 0, 0, 0, 0, jakarta),
		"15-01-2024 08:05":                 time.Date(2024, 1, 15, 8, 5, 0, 0, jakarta),
		"2024-01-15T10:30:00Z":             time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		"Senin, 15 Januari 2024 10:30 WIB": time.Date(2024, 1, 15, 10, 30, 0, 0, jakarta),
		"2024/01/15 10:30":                 time.Date(2024, 1, 15, 10, 30, 0, 0, jakarta),
		"March 3, 2024":                    time.Date(2024, 3, 3, 0, 0, 0, 0, jakarta),
	}
	for in, want := range cases {
		got := p.Parse(in)
		assert.True(t, want.Equal(got), "%s: got %s want %s", in, got, want)
	}
}

func TestDateParserFallsBackToNow(t *testing.T) {
	p := NewDateParser(time.UTC, clock.NewFake(epoch), testLogger)

	assert.Equal(t, epoch, p.Parse("not-a-date"))
	assert.Equal(t, epoch, p.Parse(""))

	_, ok := p.TryParse("not-a-date")
	assert.False(t, ok)
}
