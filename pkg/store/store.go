package store

import (
	"sync"

	"github.com/pgsim/devicectl/pkg/datasource"
)

// SimParams is the opaque per-device simulation parameter bag passed
// through to the kernel, e.g. response_delay or measurement_error.
type SimParams map[string]interface{}

func (p SimParams) clone() SimParams {
	if p == nil {
		return nil
	}
	out := make(SimParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Store is the local model for device data-source configuration. Mutations
// land here first and unconditionally, remote sync happens afterwards and
// never rolls a mutation back. All reads hand out copies.
type Store struct {
	mu        sync.RWMutex
	configs   map[string]*datasource.Config
	simParams map[string]SimParams
	selection []string
}

func New() *Store {
	return &Store{
		configs:   make(map[string]*datasource.Config),
		simParams: make(map[string]SimParams),
	}
}

// Config returns a copy of one device's config.
func (s *Store) Config(id string) (datasource.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return datasource.Config{}, false
	}
	return c.Clone(), true
}

// AllConfigs returns a copy of every device config.
func (s *Store) AllConfigs() map[string]datasource.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]datasource.Config, len(s.configs))
	for id, c := range s.configs {
		out[id] = c.Clone()
	}
	return out
}

// Patch is a shallow merge of config fields, decodable straight from an
// api request body. Payloads land in the variant cache, Type switches the
// active variant last so a payload plus type in one patch activates that
// payload.
type Patch struct {
	Type       *datasource.SourceType       `json:"dataSourceType,omitempty"`
	Manual     *datasource.ManualSetpoint   `json:"manualSetpoint,omitempty"`
	Random     *datasource.RandomConfig     `json:"randomConfig,omitempty"`
	Historical *datasource.HistoricalConfig `json:"historicalConfig,omitempty"`
	SimParams  SimParams                    `json:"simParams,omitempty"`
}

// Apply merges a patch into one device's config, creating the entry when
// absent. Returns the resulting config.
func (s *Store) Apply(id string, p Patch) datasource.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	if p.Manual != nil {
		c.PutManual(*p.Manual)
	}
	if p.Random != nil {
		c.PutRandom(*p.Random)
	}
	if p.Historical != nil {
		c.PutHistorical(*p.Historical)
	}
	if len(p.SimParams) > 0 {
		s.mergeSimParams(id, p.SimParams)
	}
	if p.Type != nil {
		c.SetType(*p.Type)
	}
	return c.Clone()
}

// SetType activates a data-source variant, restoring the cached payload or
// default-filling on first activation.
func (s *Store) SetType(id string, t datasource.SourceType) datasource.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	c.SetType(t)
	return c.Clone()
}

// SetManual stores a manual setpoint and makes manual the active variant.
func (s *Store) SetManual(id string, m datasource.ManualSetpoint) datasource.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	c.SetManual(m)
	return c.Clone()
}

func (s *Store) SetRandom(id string, r datasource.RandomConfig) datasource.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	c.SetRandom(r)
	return c.Clone()
}

func (s *Store) SetHistorical(id string, h datasource.HistoricalConfig) datasource.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	c.SetHistorical(h)
	return c.Clone()
}

// SetSimParams merges params into the device's bag and returns the merged
// result.
func (s *Store) SetSimParams(id string, params SimParams) SimParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeSimParams(id, params)
	return s.simParams[id].clone()
}

func (s *Store) SimParams(id string) (SimParams, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.simParams[id]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// SetSelection replaces the selection, deduplicating while preserving
// order. Returns the stored selection.
func (s *Store) SetSelection(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	s.selection = out
	return append([]string(nil), out...)
}

func (s *Store) Selection() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.selection...)
}

// BatchSetType applies SetType to every selected device and returns the
// affected ids in selection order. One device's state never affects
// another's.
func (s *Store) BatchSetType(t datasource.SourceType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.selection...)
	for _, id := range ids {
		s.getOrCreate(id).SetType(t)
	}
	return ids
}

// Remove drops one device's config and sim params. Reports whether
// anything was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hadConfig := s.configs[id]
	_, hadParams := s.simParams[id]
	delete(s.configs, id)
	delete(s.simParams, id)
	return hadConfig || hadParams
}

// Clear drops all configs, sim params and the selection.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = make(map[string]*datasource.Config)
	s.simParams = make(map[string]SimParams)
	s.selection = nil
}

// Snapshot is the JSON-stable full state used for session persistence.
type Snapshot struct {
	Configs   map[string]datasource.Config `json:"configs"`
	SimParams map[string]SimParams         `json:"simParams"`
	Selection []string                     `json:"selection"`
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Configs:   make(map[string]datasource.Config, len(s.configs)),
		SimParams: make(map[string]SimParams, len(s.simParams)),
		Selection: append([]string(nil), s.selection...),
	}
	for id, c := range s.configs {
		snap.Configs[id] = c.Clone()
	}
	for id, p := range s.simParams {
		snap.SimParams[id] = p.clone()
	}
	return snap
}

// Restore replaces the full state with a snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = make(map[string]*datasource.Config, len(snap.Configs))
	for id, c := range snap.Configs {
		clone := c.Clone()
		s.configs[id] = &clone
	}
	s.simParams = make(map[string]SimParams, len(snap.SimParams))
	for id, p := range snap.SimParams {
		s.simParams[id] = p.clone()
	}
	s.selection = append([]string(nil), snap.Selection...)
}

func (s *Store) getOrCreate(id string) *datasource.Config {
	c, ok := s.configs[id]
	if !ok {
		c = &datasource.Config{}
		s.configs[id] = c
	}
	return c
}

func (s *Store) mergeSimParams(id string, params SimParams) {
	current, ok := s.simParams[id]
	if !ok {
		current = make(SimParams, len(params))
		s.simParams[id] = current
	}
	for k, v := range params {
		current[k] = v
	}
}
