package histdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/units"
)

// CSVReader reads replay profiles from csv exports. Rows with an
// unparsable time cell are skipped, unparsable numeric cells read as 0
// so a single bad value never kills a whole profile.
type CSVReader struct {
	path string
}

func NewCSV(path string) *CSVReader {
	return &CSVReader{path: path}
}

func (r *CSVReader) open() (*os.File, *csv.Reader, []string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open csv: %w", err)
	}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return f, cr, header, nil
}

// Columns returns the header row.
func (r *CSVReader) Columns() ([]string, error) {
	f, _, header, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return header, nil
}

// TimeRange scans the whole file for the span of the time column.
func (r *CSVReader) TimeRange(timeColumn, timeLayout string) (*TimeRange, error) {
	f, cr, header, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	timeIdx := indexOf(header, timeColumn)
	if timeIdx < 0 {
		return nil, fmt.Errorf("%w: %s", units.ErrMissingColumn, timeColumn)
	}

	out := &TimeRange{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if timeIdx >= len(record) {
			continue
		}
		ts, err := ParseTimestamp(record[timeIdx], timeLayout)
		if err != nil {
			continue
		}
		if out.Rows == 0 || ts.Before(out.Start) {
			out.Start = ts
		}
		if out.Rows == 0 || ts.After(out.End) {
			out.End = ts
		}
		out.Rows++
	}
	if out.Rows == 0 {
		return nil, fmt.Errorf("no parsable rows in %s", r.path)
	}
	return out, nil
}

// Preview evaluates the first n replayable samples the way the kernel
// will: every numeric cell goes into the row, the power comes from the
// single configured column or from the load calculation.
func (r *CSVReader) Preview(cfg datasource.HistoricalConfig, n int) ([]Sample, error) {
	f, cr, header, err := r.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	timeIdx := indexOf(header, cfg.TimeColumn)
	if timeIdx < 0 {
		return nil, fmt.Errorf("%w: %s", units.ErrMissingColumn, cfg.TimeColumn)
	}
	if cfg.LoadCalculation == nil && cfg.PowerColumn != nil {
		if indexOf(header, cfg.PowerColumn.ColumnName) < 0 {
			return nil, fmt.Errorf("%w: %s", units.ErrMissingColumn, cfg.PowerColumn.ColumnName)
		}
	}

	var samples []Sample
	for len(samples) < n {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if timeIdx >= len(record) {
			continue
		}
		ts, err := ParseTimestamp(record[timeIdx], cfg.TimeFormat)
		if err != nil {
			continue
		}
		if !inWindow(ts, cfg.StartTime, cfg.EndTime) {
			continue
		}

		row := make(map[string]float64, len(header))
		for i, name := range header {
			if i >= len(record) || i == timeIdx {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				v = 0
			}
			row[name] = v
		}

		var power float64
		switch {
		case cfg.LoadCalculation != nil:
			power, err = units.ComputeLoad(row, *cfg.LoadCalculation)
			if err != nil {
				return nil, err
			}
		case cfg.PowerColumn != nil:
			power, err = cfg.PowerColumn.Normalize(row[cfg.PowerColumn.ColumnName])
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("csv config has neither power column nor load calculation")
		}
		samples = append(samples, Sample{Timestamp: ts, PowerKW: power})
	}
	return samples, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func inWindow(ts time.Time, start, end *int64) bool {
	if start != nil && ts.Before(time.Unix(*start, 0)) {
		return false
	}
	if end != nil && ts.After(time.Unix(*end, 0)) {
		return false
	}
	return true
}
