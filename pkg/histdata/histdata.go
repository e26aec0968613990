package histdata

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sample is one replayable data point in canonical units.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	PowerKW      float64   `json:"powerKw"`
	ReactiveKVAr *float64  `json:"reactiveKvar,omitempty"`
}

// TimeRange is the replayable span of a historical file.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Rows  int       `json:"rows"`
}

// DefaultTimeLayout matches the most common export format.
const DefaultTimeLayout = "2006-01-02 15:04:05"

// LayoutUnix selects numeric epoch parsing explicitly.
const LayoutUnix = "unix"

// TimeLayouts lists the layouts supported for csv time columns.
func TimeLayouts() []string {
	return []string{
		DefaultTimeLayout,
		time.RFC3339,
		"2006/01/02 15:04:05",
		"01/02/2006 15:04:05",
		"02.01.2006 15:04:05",
		LayoutUnix,
	}
}

var ErrBadTimestamp = errors.New("unparsable timestamp")

// ParseTimestamp reads one raw time cell. Numeric epochs win regardless of
// layout, values above 1e12 are milliseconds. Then the configured layout,
// then RFC 3339 as a fallback. Zoneless layouts are read as UTC.
func ParseTimestamp(raw string, layout string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrBadTimestamp)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f > 1e12 {
			return time.UnixMilli(int64(f)).UTC(), nil
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
	}
	if layout == "" {
		layout = DefaultTimeLayout
	}
	if layout != LayoutUnix {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, raw)
}

// MapReplayTime maps a query time into the file's span. With loop enabled
// the time wraps modulo the span, without loop it clamps to the edges.
func MapReplayTime(t time.Time, r TimeRange, loop bool) time.Time {
	if !r.End.After(r.Start) {
		return r.Start
	}
	if !loop {
		if t.Before(r.Start) {
			return r.Start
		}
		if t.After(r.End) {
			return r.End
		}
		return t
	}
	span := r.End.Sub(r.Start)
	offset := t.Sub(r.Start) % span
	if offset < 0 {
		offset += span
	}
	return r.Start.Add(offset)
}
