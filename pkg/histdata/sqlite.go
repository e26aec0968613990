package histdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pgsim/devicectl/pkg/datasource"
)

// SQLiteReader reads replay profiles from recorded device_data tables.
// The active power column is p_active with power as a legacy fallback,
// p_reactive is optional. Timestamps may be epochs or text datetimes.
type SQLiteReader struct {
	db *sql.DB
}

// OpenSQLite opens the file read only.
func OpenSQLite(path string) (*SQLiteReader, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &SQLiteReader{db: db}, nil
}

func (r *SQLiteReader) Close() error {
	return r.db.Close()
}

// Devices lists the recorded device ids.
func (r *SQLiteReader) Devices(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT device_id FROM device_data ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TimeRange returns the recorded span, optionally filtered to one source
// device.
func (r *SQLiteReader) TimeRange(ctx context.Context, deviceID string) (*TimeRange, error) {
	query := `SELECT MIN(timestamp), MAX(timestamp), COUNT(*) FROM device_data`
	args := []interface{}{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	var minRaw, maxRaw interface{}
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&minRaw, &maxRaw, &count); err != nil {
		return nil, fmt.Errorf("time range: %w", err)
	}
	if count == 0 || minRaw == nil || maxRaw == nil {
		return nil, fmt.Errorf("no recorded rows for %q", deviceID)
	}
	start, err := coerceTime(minRaw)
	if err != nil {
		return nil, err
	}
	end, err := coerceTime(maxRaw)
	if err != nil {
		return nil, err
	}
	return &TimeRange{Start: start, End: end, Rows: count}, nil
}

// Preview reads the first n samples for the configured source device,
// normalized through the optional sqlite power conversion.
func (r *SQLiteReader) Preview(ctx context.Context, cfg datasource.HistoricalConfig, n int) ([]Sample, error) {
	powerCol, hasReactive, err := r.powerColumns(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT timestamp, %s`, powerCol)
	if hasReactive {
		query += `, p_reactive`
	}
	query += ` FROM device_data`
	args := []interface{}{}
	if cfg.SourceDeviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, cfg.SourceDeviceID)
	}
	query += ` ORDER BY timestamp`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() && len(samples) < n {
		var tsRaw interface{}
		var power sql.NullFloat64
		var reactive sql.NullFloat64
		dest := []interface{}{&tsRaw, &power}
		if hasReactive {
			dest = append(dest, &reactive)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		ts, err := coerceTime(tsRaw)
		if err != nil {
			continue
		}
		if !inWindow(ts, cfg.StartTime, cfg.EndTime) {
			continue
		}

		sample := Sample{Timestamp: ts, PowerKW: power.Float64}
		if reactive.Valid {
			v := reactive.Float64
			sample.ReactiveKVAr = &v
		}
		if cfg.SqliteScale != nil {
			sample.PowerKW, err = cfg.SqliteScale.Normalize(sample.PowerKW)
			if err != nil {
				return nil, err
			}
			if sample.ReactiveKVAr != nil {
				v, err := cfg.SqliteScale.Normalize(*sample.ReactiveKVAr)
				if err != nil {
					return nil, err
				}
				sample.ReactiveKVAr = &v
			}
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// powerColumns inspects device_data for the active power column name and
// whether reactive power was recorded.
func (r *SQLiteReader) powerColumns(ctx context.Context) (string, bool, error) {
	rows, err := r.db.QueryContext(ctx, `PRAGMA table_info(device_data)`)
	if err != nil {
		return "", false, fmt.Errorf("inspect device_data: %w", err)
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return "", false, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return "", false, err
	}
	if len(cols) == 0 {
		return "", false, fmt.Errorf("no device_data table")
	}
	switch {
	case cols["p_active"]:
		return "p_active", cols["p_reactive"], nil
	case cols["power"]:
		return "power", cols["p_reactive"], nil
	}
	return "", false, fmt.Errorf("device_data has no power column")
}

func coerceTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case int64:
		if t > 1e12 {
			return time.UnixMilli(t).UTC(), nil
		}
		return time.Unix(t, 0).UTC(), nil
	case float64:
		if t > 1e12 {
			return time.UnixMilli(int64(t)).UTC(), nil
		}
		return time.Unix(int64(t), 0).UTC(), nil
	case string:
		return ParseTimestamp(t, "")
	case []byte:
		return ParseTimestamp(string(t), "")
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, v)
}
