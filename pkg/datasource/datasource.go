package datasource

import (
	"errors"
	"fmt"

	"github.com/pgsim/devicectl/pkg/devices"
	"github.com/pgsim/devicectl/pkg/units"
)

// SourceType tags which data-source variant drives a device.
type SourceType string

const (
	TypeNone       SourceType = ""
	TypeManual     SourceType = "manual"
	TypeRandom     SourceType = "random"
	TypeHistorical SourceType = "historical"
)

var ErrInvalid = errors.New("invalid data source config")

// ParseSourceType validates operator input. The empty string is legal and
// deselects the data source.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(s); t {
	case TypeNone, TypeManual, TypeRandom, TypeHistorical:
		return t, nil
	}
	return TypeNone, fmt.Errorf("unknown data source type %q", s)
}

// ManualSetpoint fixes active and reactive power. Canonical units, kW and
// kVAr.
type ManualSetpoint struct {
	ActivePowerKW     float64 `json:"activePower"`
	ReactivePowerKVAr float64 `json:"reactivePower"`
}

// RandomConfig bounds the kernel's random walk generator.
type RandomConfig struct {
	MinPowerKW      float64 `json:"minPower"`
	MaxPowerKW      float64 `json:"maxPower"`
	UpdateIntervalS float64 `json:"updateInterval"`
	Volatility      float64 `json:"volatility"`
}

func (r RandomConfig) validate() error {
	if r.MinPowerKW > r.MaxPowerKW {
		return fmt.Errorf("%w: minPower %.3f above maxPower %.3f", ErrInvalid, r.MinPowerKW, r.MaxPowerKW)
	}
	return nil
}

// HistSource selects the historical file backend.
type HistSource string

const (
	HistCSV    HistSource = "csv"
	HistSQLite HistSource = "sqlite"
)

// HistoricalConfig replays a recorded profile from a csv or sqlite file.
// The csv branch needs a time column and either a single power column or,
// for load devices, a load calculation. The sqlite branch replays one
// source device from a device_data table.
type HistoricalConfig struct {
	Source             HistSource `json:"sourceType"`
	FilePath           string     `json:"filePath"`
	StartTime          *int64     `json:"startTime,omitempty"`
	EndTime            *int64     `json:"endTime,omitempty"`
	PlaybackIntervalMs int        `json:"playbackIntervalMs"`
	Loop               bool       `json:"loop"`

	TimeColumn      string                 `json:"timeColumn,omitempty"`
	TimeFormat      string                 `json:"timeFormat,omitempty"`
	PowerColumn     *units.ColumnSource    `json:"powerColumn,omitempty"`
	LoadCalculation *units.LoadCalculation `json:"loadCalculation,omitempty"`

	SourceDeviceID string            `json:"sourceDeviceId,omitempty"`
	SqliteScale    *units.Conversion `json:"sqlitePowerConfig,omitempty"`
}

func (h HistoricalConfig) validate(deviceType string) error {
	if h.FilePath == "" {
		return fmt.Errorf("%w: historical config has no file", ErrInvalid)
	}
	switch h.Source {
	case HistCSV:
		if h.TimeColumn == "" {
			return fmt.Errorf("%w: csv config has no time column", ErrInvalid)
		}
		if devices.IsLoad(deviceType) {
			if h.LoadCalculation == nil || h.LoadCalculation.GridMeter == nil || h.LoadCalculation.GridMeter.ColumnName == "" {
				return fmt.Errorf("%w: load device needs a load calculation with a grid meter column", ErrInvalid)
			}
			return nil
		}
		if h.PowerColumn == nil || h.PowerColumn.ColumnName == "" {
			return fmt.Errorf("%w: csv config has no power column", ErrInvalid)
		}
		return nil
	case HistSQLite:
		if h.SourceDeviceID == "" {
			return fmt.Errorf("%w: sqlite config has no source device", ErrInvalid)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown historical source %q", ErrInvalid, h.Source)
}

// Clone deep-copies all pointer fields.
func (h HistoricalConfig) Clone() HistoricalConfig {
	out := h
	if h.StartTime != nil {
		v := *h.StartTime
		out.StartTime = &v
	}
	if h.EndTime != nil {
		v := *h.EndTime
		out.EndTime = &v
	}
	if h.PowerColumn != nil {
		c := h.PowerColumn.Clone()
		out.PowerColumn = &c
	}
	if h.LoadCalculation != nil {
		c := h.LoadCalculation.Clone()
		out.LoadCalculation = &c
	}
	if h.SqliteScale != nil {
		c := h.SqliteScale.Clone()
		out.SqliteScale = &c
	}
	return out
}

// DefaultManual is the payload used when manual mode is activated for the
// first time.
func DefaultManual() ManualSetpoint {
	return ManualSetpoint{}
}

// DefaultRandom is the payload used when random mode is activated for the
// first time.
func DefaultRandom() RandomConfig {
	return RandomConfig{MinPowerKW: 0, MaxPowerKW: 100, UpdateIntervalS: 1, Volatility: 0.1}
}

// DefaultHistorical is an intentionally incomplete skeleton. It stays
// invalid until the operator supplies a file.
func DefaultHistorical() HistoricalConfig {
	return HistoricalConfig{Source: HistCSV, PlaybackIntervalMs: 1000, Loop: true}
}
