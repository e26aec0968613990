package histdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/units"
)

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestCSVColumns(t *testing.T) {
	path := writeCSV(t,
		"timestamp, pv_power ,grid_power",
		"2024-01-01 00:00:00,1.5,2.5",
	)
	cols, err := NewCSV(path).Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "pv_power", "grid_power"}, cols)

	_, err = NewCSV(filepath.Join(t.TempDir(), "missing.csv")).Columns()
	assert.Error(t, err)
}

func TestCSVTimeRange(t *testing.T) {
	path := writeCSV(t,
		"timestamp,power",
		"2024-01-01 00:00:00,1",
		"not a time,2",
		"2024-01-01 02:00:00,3",
		"2024-01-01 01:00:00,4",
	)
	r, err := NewCSV(path).TimeRange("timestamp", "")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Rows)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC), r.End)

	_, err = NewCSV(path).TimeRange("no_such_column", "")
	require.ErrorIs(t, err, units.ErrMissingColumn)
}

func TestCSVTimeRangeNoParsableRows(t *testing.T) {
	path := writeCSV(t,
		"timestamp,power",
		"bogus,1",
	)
	_, err := NewCSV(path).TimeRange("timestamp", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parsable rows")
}

func TestCSVPreviewPowerColumn(t *testing.T) {
	path := writeCSV(t,
		"timestamp,pv_w",
		"2024-01-01 00:00:00,1500",
		"2024-01-01 00:00:01,2500",
		"2024-01-01 00:00:02,oops",
	)
	cfg := datasource.HistoricalConfig{
		Source:     datasource.HistCSV,
		FilePath:   path,
		TimeColumn: "timestamp",
		PowerColumn: &units.ColumnSource{
			ColumnName: "pv_w",
			Conversion: units.Conversion{Unit: units.UnitW},
		},
	}
	samples, err := NewCSV(path).Preview(cfg, 10)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 1.5, samples[0].PowerKW, 1e-9)
	assert.InDelta(t, 2.5, samples[1].PowerKW, 1e-9)
	// unparsable numeric cell reads as zero instead of failing the preview
	assert.Zero(t, samples[2].PowerKW)
}

func TestCSVPreviewLoadCalculation(t *testing.T) {
	path := writeCSV(t,
		"ts,grid,pv,battery",
		"2024-01-01 00:00:00,5,2,1",
		"2024-01-01 00:00:01,6,2,-1",
	)
	cfg := datasource.HistoricalConfig{
		Source:     datasource.HistCSV,
		FilePath:   path,
		TimeColumn: "ts",
		LoadCalculation: &units.LoadCalculation{
			GridMeter:    &units.ColumnSource{ColumnName: "grid"},
			PVGeneration: &units.ColumnSource{ColumnName: "pv"},
			StoragePower: &units.ColumnSource{ColumnName: "battery"},
		},
	}
	samples, err := NewCSV(path).Preview(cfg, 10)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, 6.0, samples[0].PowerKW, 1e-9)
	assert.InDelta(t, 9.0, samples[1].PowerKW, 1e-9)
}

func TestCSVPreviewMissingColumns(t *testing.T) {
	path := writeCSV(t,
		"ts,solar",
		"2024-01-01 00:00:00,5",
	)

	cfg := datasource.HistoricalConfig{
		Source:      datasource.HistCSV,
		FilePath:    path,
		TimeColumn:  "ts",
		PowerColumn: &units.ColumnSource{ColumnName: "no_such"},
	}
	_, err := NewCSV(path).Preview(cfg, 10)
	require.ErrorIs(t, err, units.ErrMissingColumn)

	cfg = datasource.HistoricalConfig{
		Source:     datasource.HistCSV,
		FilePath:   path,
		TimeColumn: "ts",
		LoadCalculation: &units.LoadCalculation{
			GridMeter: &units.ColumnSource{ColumnName: "grid"},
		},
	}
	_, err = NewCSV(path).Preview(cfg, 10)
	require.ErrorIs(t, err, units.ErrMissingColumn)

	cfg.TimeColumn = "no_such_time"
	_, err = NewCSV(path).Preview(cfg, 10)
	require.ErrorIs(t, err, units.ErrMissingColumn)
}

func TestCSVPreviewWindowAndLimit(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeCSV(t,
		"ts,p",
		base.Format(DefaultTimeLayout)+",1",
		base.Add(1*time.Second).Format(DefaultTimeLayout)+",2",
		base.Add(2*time.Second).Format(DefaultTimeLayout)+",3",
		base.Add(3*time.Second).Format(DefaultTimeLayout)+",4",
		base.Add(4*time.Second).Format(DefaultTimeLayout)+",5",
	)
	cfg := datasource.HistoricalConfig{
		Source:      datasource.HistCSV,
		FilePath:    path,
		TimeColumn:  "ts",
		StartTime:   units.Pointer(base.Add(1 * time.Second).Unix()),
		EndTime:     units.Pointer(base.Add(3 * time.Second).Unix()),
		PowerColumn: &units.ColumnSource{ColumnName: "p"},
	}

	samples, err := NewCSV(path).Preview(cfg, 10)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 2.0, samples[0].PowerKW, 1e-9)
	assert.InDelta(t, 4.0, samples[2].PowerKW, 1e-9)

	samples, err = NewCSV(path).Preview(cfg, 2)
	require.NoError(t, err)
	require.Len(t, samples, 2)
}
