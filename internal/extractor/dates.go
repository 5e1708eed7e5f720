package extractor

import (
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/SmillingSword/news-reynra/internal/clock"
)

// dateLayouts are tried in order before the flexible parser. Day-first
// layouts come before dateparse, which reads 01/02/2006 as month-first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2 January 2006 15:04",
	"2 January 2006",
	"January 2, 2006 15:04",
	"January 2, 2006",
	time.RFC1123Z,
	time.RFC1123,
}

var indonesianMonths = strings.NewReplacer(
	"Januari", "January",
	"Februari", "February",
	"Maret", "March",
	"Mei", "May",
	"Juni", "June",
	"Juli", "July",
	"Agustus", "August",
	"Agu", "Aug",
	"Oktober", "October",
	"Okt", "Oct",
	"Desember", "December",
	"Des", "Dec",
)

var dayNames = []string{
	"Senin,", "Selasa,", "Rabu,", "Kamis,", "Jumat,", "Sabtu,", "Minggu,",
}

// DateParser turns the date strings sources publish into timestamps.
type DateParser struct {
	loc    *time.Location
	clock  clock.Clock
	logger *slog.Logger
}

// NewDateParser creates a DateParser. Strings without a zone are read in loc.
func NewDateParser(loc *time.Location, clk clock.Clock, logger *slog.Logger) *DateParser {
	if loc == nil {
		loc = time.UTC
	}
	return &DateParser{loc: loc, clock: clk, logger: logger.With("component", "date_parser")}
}

// Parse returns the parsed time. Empty input yields the current time; so
// does unparseable input, with a warning.
func (d *DateParser) Parse(raw string) time.Time {
	t, ok := d.TryParse(raw)
	if ok {
		return t
	}
	if strings.TrimSpace(raw) != "" {
		d.logger.Warn("unparseable date, using now", "value", raw)
	}
	return d.clock.Now()
}

// TryParse reports whether raw could be parsed.
func (d *DateParser) TryParse(raw string) (time.Time, bool) {
	s := normalizeDate(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, d.loc); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseIn(s, d.loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func normalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	for _, day := range dayNames {
		s = strings.TrimPrefix(s, day)
	}
	s = strings.TrimSpace(s)
	for _, zone := range []string{" WIB", " WITA", " WIT"} {
		s = strings.TrimSuffix(s, zone)
	}
	s = strings.ReplaceAll(s, " pukul ", " ")
	return indonesianMonths.Replace(s)
}
