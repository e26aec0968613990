package units

import (
	"errors"
	"fmt"
)

// PowerUnit names the unit a raw data column is denominated in. The
// canonical unit everywhere else in the daemon is kilowatt.
type PowerUnit string

const (
	UnitW      PowerUnit = "W"
	UnitKW     PowerUnit = "kW"
	UnitMW     PowerUnit = "MW"
	UnitCustom PowerUnit = "custom"
)

var (
	ErrUnknownUnit   = errors.New("unknown power unit")
	ErrMissingScale  = errors.New("custom unit requires scaleToStandard")
	ErrMissingColumn = errors.New("missing column")
)

// Conversion describes how raw samples are turned into canonical kW.
// ScaleToStandard is only consulted for UnitCustom. A scale of 0 is legal
// and zeroes every sample, see Warnings.
type Conversion struct {
	Unit            PowerUnit `json:"unit"`
	ScaleToStandard *float64  `json:"scaleToStandard,omitempty"`
	InvertDirection bool      `json:"invertDirection,omitempty"`
}

// Normalize converts v into kW. InvertDirection negates the result after
// scaling. An empty unit means the column is already in kW.
func (c Conversion) Normalize(v float64) (float64, error) {
	var kw float64
	switch c.Unit {
	case UnitW:
		kw = v * 0.001
	case UnitKW, "":
		kw = v
	case UnitMW:
		kw = v * 1000
	case UnitCustom:
		if c.ScaleToStandard == nil {
			return 0, ErrMissingScale
		}
		kw = v * *c.ScaleToStandard
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, c.Unit)
	}
	if c.InvertDirection {
		kw = -kw
	}
	return kw, nil
}

// Warnings lists configurations Normalize accepts but that are almost
// certainly operator mistakes. label names the column in the messages.
func (c Conversion) Warnings(label string) []string {
	if c.Unit != UnitCustom {
		return nil
	}
	if c.ScaleToStandard == nil {
		return []string{fmt.Sprintf("%s: custom unit without scaleToStandard", label)}
	}
	if *c.ScaleToStandard == 0 {
		return []string{fmt.Sprintf("%s: scaleToStandard is 0, every sample becomes 0", label)}
	}
	return nil
}

// Clone copies the conversion including the scale pointer.
func (c Conversion) Clone() Conversion {
	out := c
	if c.ScaleToStandard != nil {
		v := *c.ScaleToStandard
		out.ScaleToStandard = &v
	}
	return out
}

// ColumnSource binds a named data column to its unit conversion.
type ColumnSource struct {
	ColumnName string `json:"columnName"`
	Conversion
}

func (s ColumnSource) Warnings() []string {
	return s.Conversion.Warnings(s.ColumnName)
}

func (s ColumnSource) Clone() ColumnSource {
	return ColumnSource{ColumnName: s.ColumnName, Conversion: s.Conversion.Clone()}
}

// LoadCalculation selects the columns that together form a site load
// profile. Only GridMeter is required, the other terms default to 0.
type LoadCalculation struct {
	GridMeter    *ColumnSource `json:"gridMeter,omitempty"`
	PVGeneration *ColumnSource `json:"pvGeneration,omitempty"`
	StoragePower *ColumnSource `json:"storagePower,omitempty"`
	ChargerPower *ColumnSource `json:"chargerPower,omitempty"`
}

// ComputeLoad evaluates
//
//	load = gridMeter + pvGeneration - storagePower - chargerPower
//
// over one row of raw samples, normalizing each term through its column
// conversion. Optional terms whose column is unconfigured or absent from
// the row contribute 0. A missing grid meter column is an error.
func ComputeLoad(row map[string]float64, calc LoadCalculation) (float64, error) {
	if calc.GridMeter == nil || calc.GridMeter.ColumnName == "" {
		return 0, fmt.Errorf("%w: gridMeter not configured", ErrMissingColumn)
	}
	raw, ok := row[calc.GridMeter.ColumnName]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, calc.GridMeter.ColumnName)
	}
	load, err := calc.GridMeter.Normalize(raw)
	if err != nil {
		return 0, err
	}

	pv, err := optionalTerm(row, calc.PVGeneration)
	if err != nil {
		return 0, err
	}
	storage, err := optionalTerm(row, calc.StoragePower)
	if err != nil {
		return 0, err
	}
	charger, err := optionalTerm(row, calc.ChargerPower)
	if err != nil {
		return 0, err
	}
	return load + pv - storage - charger, nil
}

func optionalTerm(row map[string]float64, src *ColumnSource) (float64, error) {
	if src == nil || src.ColumnName == "" {
		return 0, nil
	}
	raw, ok := row[src.ColumnName]
	if !ok {
		return 0, nil
	}
	return src.Normalize(raw)
}

// Clone deep-copies all configured terms.
func (l LoadCalculation) Clone() LoadCalculation {
	cloneSrc := func(s *ColumnSource) *ColumnSource {
		if s == nil {
			return nil
		}
		c := s.Clone()
		return &c
	}
	return LoadCalculation{
		GridMeter:    cloneSrc(l.GridMeter),
		PVGeneration: cloneSrc(l.PVGeneration),
		StoragePower: cloneSrc(l.StoragePower),
		ChargerPower: cloneSrc(l.ChargerPower),
	}
}

// Warnings aggregates unit warnings over all configured terms.
func (l LoadCalculation) Warnings() []string {
	var warnings []string
	for _, t := range []struct {
		role string
		src  *ColumnSource
	}{
		{"gridMeter", l.GridMeter},
		{"pvGeneration", l.PVGeneration},
		{"storagePower", l.StoragePower},
		{"chargerPower", l.ChargerPower},
	} {
		if t.src == nil {
			continue
		}
		for _, w := range t.src.Conversion.Warnings(t.src.ColumnName) {
			warnings = append(warnings, t.role+" "+w)
		}
	}
	return warnings
}

// KilowattsToMW converts to the MW denomination used by simulation device
// properties.
func KilowattsToMW(kw float64) float64 {
	return kw / 1000.0
}

func Pointer[K any](val K) *K {
	return &val
}
