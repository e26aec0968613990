package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/histdata"
	"github.com/pgsim/devicectl/pkg/kernel"
)

const (
	defaultPreviewRows = 20
	maxPreviewRows     = 1000
)

func (s *Server) historicalColumns(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	cols, err := histdata.NewCSV(path).Columns()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns":     cols,
		"timeFormats": histdata.TimeLayouts(),
	})
}

func (s *Server) historicalPreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Config datasource.HistoricalConfig `json:"config"`
		Rows   int                         `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if body.Config.FilePath == "" {
		writeError(w, http.StatusBadRequest, "config.filePath is required")
		return
	}
	n := body.Rows
	if n <= 0 {
		n = defaultPreviewRows
	}
	if n > maxPreviewRows {
		n = maxPreviewRows
	}

	var samples []histdata.Sample
	var err error
	switch body.Config.Source {
	case datasource.HistSQLite:
		var reader *histdata.SQLiteReader
		reader, err = histdata.OpenSQLite(body.Config.FilePath)
		if err == nil {
			defer reader.Close()
			samples, err = reader.Preview(r.Context(), body.Config, n)
		}
	default:
		samples, err = histdata.NewCSV(body.Config.FilePath).Preview(body.Config, n)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"samples": samples,
		"count":   len(samples),
	})
}

func (s *Server) historicalRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	source := q.Get("source")
	if source == "" {
		source = string(datasource.HistCSV)
	}

	if q.Get("remote") == "1" {
		if s.kernel == nil {
			writeError(w, http.StatusServiceUnavailable, "kernel not configured")
			return
		}
		tr, err := s.kernel.HistoricalTimeRange(r.Context(), kernel.RangeRequest{
			Path:           path,
			Source:         source,
			TimeColumn:     q.Get("timeColumn"),
			TimeFormat:     q.Get("timeFormat"),
			SourceDeviceID: q.Get("device"),
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, histdata.TimeRange{
			Start: time.Unix(tr.Start, 0).UTC(),
			End:   time.Unix(tr.End, 0).UTC(),
			Rows:  tr.Rows,
		})
		return
	}

	var tr *histdata.TimeRange
	var err error
	switch datasource.HistSource(source) {
	case datasource.HistSQLite:
		var reader *histdata.SQLiteReader
		reader, err = histdata.OpenSQLite(path)
		if err == nil {
			defer reader.Close()
			tr, err = reader.TimeRange(r.Context(), q.Get("device"))
		}
	default:
		timeColumn := q.Get("timeColumn")
		if timeColumn == "" {
			writeError(w, http.StatusBadRequest, "timeColumn is required for csv files")
			return
		}
		tr, err = histdata.NewCSV(path).TimeRange(timeColumn, q.Get("timeFormat"))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) sqliteDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if q.Get("remote") == "1" {
		if s.kernel == nil {
			writeError(w, http.StatusServiceUnavailable, "kernel not configured")
			return
		}
		ids, err := s.kernel.SqliteDevices(r.Context(), path)
		if err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"devices": ids})
		return
	}

	reader, err := histdata.OpenSQLite(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer reader.Close()
	ids, err := reader.Devices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": ids})
}
