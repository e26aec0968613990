package datasource

import (
	"encoding/json"
	"fmt"
)

// Config is the per-device data-source selection. Exactly one variant is
// active at a time, tagged by its SourceType. Payloads for inactive
// variants are kept so toggling between types restores what the operator
// entered last instead of wiping the form.
//
// The zero value has no data source selected.
type Config struct {
	active     SourceType
	manual     *ManualSetpoint
	random     *RandomConfig
	historical *HistoricalConfig
}

func NewManual(m ManualSetpoint) Config {
	c := Config{}
	c.SetManual(m)
	return c
}

func NewRandom(r RandomConfig) Config {
	c := Config{}
	c.SetRandom(r)
	return c
}

func NewHistorical(h HistoricalConfig) Config {
	c := Config{}
	c.SetHistorical(h)
	return c
}

// Type returns the active variant, TypeNone when nothing is selected.
func (c Config) Type() SourceType {
	return c.active
}

// Manual returns the manual payload, cached or active, and whether one
// exists.
func (c Config) Manual() (ManualSetpoint, bool) {
	if c.manual == nil {
		return ManualSetpoint{}, false
	}
	return *c.manual, true
}

func (c Config) Random() (RandomConfig, bool) {
	if c.random == nil {
		return RandomConfig{}, false
	}
	return *c.random, true
}

func (c Config) Historical() (HistoricalConfig, bool) {
	if c.historical == nil {
		return HistoricalConfig{}, false
	}
	return c.historical.Clone(), true
}

// SetManual stores the payload and makes manual the active variant.
func (c *Config) SetManual(m ManualSetpoint) {
	c.manual = &m
	c.active = TypeManual
}

func (c *Config) SetRandom(r RandomConfig) {
	c.random = &r
	c.active = TypeRandom
}

func (c *Config) SetHistorical(h HistoricalConfig) {
	clone := h.Clone()
	c.historical = &clone
	c.active = TypeHistorical
}

// PutManual caches the payload without changing the active variant.
func (c *Config) PutManual(m ManualSetpoint) {
	c.manual = &m
}

func (c *Config) PutRandom(r RandomConfig) {
	c.random = &r
}

func (c *Config) PutHistorical(h HistoricalConfig) {
	clone := h.Clone()
	c.historical = &clone
}

// SetType activates a variant. A cached payload is restored when present,
// otherwise the variant default is filled in. TypeNone deselects while
// keeping all cached payloads.
func (c *Config) SetType(t SourceType) {
	switch t {
	case TypeManual:
		if c.manual == nil {
			m := DefaultManual()
			c.manual = &m
		}
	case TypeRandom:
		if c.random == nil {
			r := DefaultRandom()
			c.random = &r
		}
	case TypeHistorical:
		if c.historical == nil {
			h := DefaultHistorical()
			c.historical = &h
		}
	}
	c.active = t
}

// Validate checks the active variant's payload. deviceType picks the csv
// branch rules for historical configs. Invalid configs are storable
// drafts, they are just never synced to the kernel.
func (c Config) Validate(deviceType string) error {
	switch c.active {
	case TypeNone:
		return fmt.Errorf("%w: no data source selected", ErrInvalid)
	case TypeManual:
		if c.manual == nil {
			return fmt.Errorf("%w: manual payload missing", ErrInvalid)
		}
		return nil
	case TypeRandom:
		if c.random == nil {
			return fmt.Errorf("%w: random payload missing", ErrInvalid)
		}
		return c.random.validate()
	case TypeHistorical:
		if c.historical == nil {
			return fmt.Errorf("%w: historical payload missing", ErrInvalid)
		}
		return c.historical.validate(deviceType)
	}
	return fmt.Errorf("%w: unknown data source type %q", ErrInvalid, c.active)
}

// Warnings surfaces unit configuration smells of the active historical
// payload.
func (c Config) Warnings() []string {
	if c.active != TypeHistorical || c.historical == nil {
		return nil
	}
	var warnings []string
	if c.historical.PowerColumn != nil {
		warnings = append(warnings, c.historical.PowerColumn.Warnings()...)
	}
	if c.historical.LoadCalculation != nil {
		warnings = append(warnings, c.historical.LoadCalculation.Warnings()...)
	}
	if c.historical.SqliteScale != nil {
		warnings = append(warnings, c.historical.SqliteScale.Warnings("sqlite power")...)
	}
	return warnings
}

// Clone deep-copies the config including cached payloads.
func (c Config) Clone() Config {
	out := Config{active: c.active}
	if c.manual != nil {
		m := *c.manual
		out.manual = &m
	}
	if c.random != nil {
		r := *c.random
		out.random = &r
	}
	if c.historical != nil {
		h := c.historical.Clone()
		out.historical = &h
	}
	return out
}

type configJSON struct {
	DataSourceType   SourceType        `json:"dataSourceType,omitempty"`
	ManualSetpoint   *ManualSetpoint   `json:"manualSetpoint,omitempty"`
	RandomConfig     *RandomConfig     `json:"randomConfig,omitempty"`
	HistoricalConfig *HistoricalConfig `json:"historicalConfig,omitempty"`
}

// MarshalJSON writes the flat wire shape with all cached payloads present.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		DataSourceType:   c.active,
		ManualSetpoint:   c.manual,
		RandomConfig:     c.random,
		HistoricalConfig: c.historical,
	})
}

// UnmarshalJSON restores the variant cache. An active type without its
// payload gets the variant default so the invariant holds.
func (c *Config) UnmarshalJSON(b []byte) error {
	var j configJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	c.manual = j.ManualSetpoint
	c.random = j.RandomConfig
	c.historical = j.HistoricalConfig
	c.active = TypeNone
	if _, err := ParseSourceType(string(j.DataSourceType)); err != nil {
		return err
	}
	c.SetType(j.DataSourceType)
	return nil
}
