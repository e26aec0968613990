package histdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		layout string
		want   time.Time
		bad    bool
	}{
		{
			name: "default layout",
			raw:  "2024-03-01 12:30:00",
			want: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:   "rfc3339 fallback behind another layout",
			raw:    "2024-03-01T12:30:00Z",
			layout: DefaultTimeLayout,
			want:   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:   "slash layout",
			raw:    "2024/03/01 12:30:00",
			layout: "2006/01/02 15:04:05",
			want:   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name:   "epoch seconds",
			raw:    "1709296200",
			layout: LayoutUnix,
			want:   time.Unix(1709296200, 0).UTC(),
		},
		{
			name:   "epoch wins over text layout",
			raw:    "1709296200",
			layout: DefaultTimeLayout,
			want:   time.Unix(1709296200, 0).UTC(),
		},
		{
			name: "epoch milliseconds",
			raw:  "1709296200123",
			want: time.UnixMilli(1709296200123).UTC(),
		},
		{
			name: "fractional epoch seconds",
			raw:  "1709296200.5",
			want: time.Unix(1709296200, 500000000).UTC(),
		},
		{
			name: "surrounding whitespace",
			raw:  "  2024-03-01 12:30:00 ",
			want: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		},
		{name: "empty", raw: "", bad: true},
		{name: "garbage", raw: "yesterday", bad: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw, tt.layout)
			if tt.bad {
				require.ErrorIs(t, err, ErrBadTimestamp)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestTimeLayoutsContainDefault(t *testing.T) {
	layouts := TimeLayouts()
	assert.Contains(t, layouts, DefaultTimeLayout)
	assert.Contains(t, layouts, LayoutUnix)
}

func TestMapReplayTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := TimeRange{Start: start, End: start.Add(10 * time.Minute), Rows: 600}

	inside := start.Add(3 * time.Minute)
	assert.Equal(t, inside, MapReplayTime(inside, r, false))
	assert.Equal(t, inside, MapReplayTime(inside, r, true))

	assert.Equal(t, r.Start, MapReplayTime(start.Add(-time.Hour), r, false))
	assert.Equal(t, r.End, MapReplayTime(start.Add(time.Hour), r, false))

	assert.Equal(t, start.Add(5*time.Minute), MapReplayTime(start.Add(25*time.Minute), r, true))
	assert.Equal(t, start.Add(7*time.Minute), MapReplayTime(start.Add(-3*time.Minute), r, true))

	point := TimeRange{Start: start, End: start, Rows: 1}
	assert.Equal(t, start, MapReplayTime(start.Add(time.Hour), point, true))
	assert.Equal(t, start, MapReplayTime(start.Add(time.Hour), point, false))
}
