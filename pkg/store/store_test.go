package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsim/devicectl/pkg/datasource"
)

func TestSettersForceActiveType(t *testing.T) {
	s := New()
	s.SetManual("d1", datasource.ManualSetpoint{ActivePowerKW: 5})

	c, ok := s.Config("d1")
	require.True(t, ok)
	assert.Equal(t, datasource.TypeManual, c.Type())

	s.SetRandom("d1", datasource.RandomConfig{MinPowerKW: 1, MaxPowerKW: 9})
	c, _ = s.Config("d1")
	assert.Equal(t, datasource.TypeRandom, c.Type())

	m, ok := c.Manual()
	require.True(t, ok, "manual payload stays cached")
	assert.Equal(t, 5.0, m.ActivePowerKW)
}

func TestSetTypeRestoresCachedPayload(t *testing.T) {
	s := New()
	s.SetManual("d1", datasource.ManualSetpoint{ActivePowerKW: 42})
	s.SetType("d1", datasource.TypeRandom)
	s.SetType("d1", datasource.TypeManual)

	c, _ := s.Config("d1")
	m, ok := c.Manual()
	require.True(t, ok)
	assert.Equal(t, 42.0, m.ActivePowerKW)
}

func TestApplyPatchOrder(t *testing.T) {
	s := New()
	typ := datasource.TypeRandom
	result := s.Apply("d1", Patch{
		Type:   &typ,
		Random: &datasource.RandomConfig{MinPowerKW: 2, MaxPowerKW: 4},
		Manual: &datasource.ManualSetpoint{ActivePowerKW: 1},
	})

	assert.Equal(t, datasource.TypeRandom, result.Type())
	r, ok := result.Random()
	require.True(t, ok)
	assert.Equal(t, 2.0, r.MinPowerKW, "patched payload wins over the random default")

	m, ok := result.Manual()
	require.True(t, ok)
	assert.Equal(t, 1.0, m.ActivePowerKW, "payload without matching type lands in the cache")
}

func TestApplyPayloadOnlyKeepsActiveType(t *testing.T) {
	s := New()
	s.SetManual("d1", datasource.ManualSetpoint{})
	s.Apply("d1", Patch{Random: &datasource.RandomConfig{MinPowerKW: 1, MaxPowerKW: 2}})

	c, _ := s.Config("d1")
	assert.Equal(t, datasource.TypeManual, c.Type())
	_, ok := c.Random()
	assert.True(t, ok)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	s.SetManual("d1", datasource.ManualSetpoint{ActivePowerKW: 5})

	c, _ := s.Config("d1")
	c.SetManual(datasource.ManualSetpoint{ActivePowerKW: 99})

	again, _ := s.Config("d1")
	m, _ := again.Manual()
	assert.Equal(t, 5.0, m.ActivePowerKW)
}

func TestSimParamsMerge(t *testing.T) {
	s := New()
	s.SetSimParams("d1", SimParams{"response_delay": 0.5, "measurement_error": 0.01})
	merged := s.SetSimParams("d1", SimParams{"response_delay": 1.0})

	assert.Equal(t, 1.0, merged["response_delay"])
	assert.Equal(t, 0.01, merged["measurement_error"])

	got, ok := s.SimParams("d1")
	require.True(t, ok)
	got["response_delay"] = 7.0
	again, _ := s.SimParams("d1")
	assert.Equal(t, 1.0, again["response_delay"], "reads are copies")
}

func TestSelectionDedupesPreservingOrder(t *testing.T) {
	s := New()
	got := s.SetSelection([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Equal(t, []string{"b", "a", "c"}, s.Selection())
}

func TestBatchSetType(t *testing.T) {
	s := New()
	s.SetManual("a", datasource.ManualSetpoint{ActivePowerKW: 3})
	s.SetSelection([]string{"a", "b"})

	affected := s.BatchSetType(datasource.TypeRandom)
	assert.Equal(t, []string{"a", "b"}, affected)

	ca, _ := s.Config("a")
	assert.Equal(t, datasource.TypeRandom, ca.Type())
	m, ok := ca.Manual()
	require.True(t, ok)
	assert.Equal(t, 3.0, m.ActivePowerKW)

	cb, ok := s.Config("b")
	require.True(t, ok, "batch creates entries for bare selected devices")
	assert.Equal(t, datasource.TypeRandom, cb.Type())
}

func TestRemoveAndClear(t *testing.T) {
	s := New()
	assert.False(t, s.Remove("missing"))

	s.SetManual("d1", datasource.ManualSetpoint{})
	s.SetSimParams("d1", SimParams{"x": 1})
	assert.True(t, s.Remove("d1"))
	_, ok := s.Config("d1")
	assert.False(t, ok)
	_, ok = s.SimParams("d1")
	assert.False(t, ok)

	s.SetManual("d2", datasource.ManualSetpoint{})
	s.SetSelection([]string{"d2"})
	s.Clear()
	assert.Empty(t, s.AllConfigs())
	assert.Empty(t, s.Selection())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	s.SetManual("d1", datasource.ManualSetpoint{ActivePowerKW: 2})
	s.SetHistorical("d2", datasource.HistoricalConfig{
		Source:         datasource.HistSQLite,
		FilePath:       "/data/history.db",
		SourceDeviceID: "m1",
	})
	s.SetSimParams("d1", SimParams{"response_delay": 0.2})
	s.SetSelection([]string{"d1", "d2"})

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(b, &snap))

	restored := New()
	restored.Restore(snap)

	c, ok := restored.Config("d2")
	require.True(t, ok)
	h, _ := c.Historical()
	assert.Equal(t, "m1", h.SourceDeviceID)

	p, ok := restored.SimParams("d1")
	require.True(t, ok)
	assert.Equal(t, 0.2, p["response_delay"])
	assert.Equal(t, []string{"d1", "d2"}, restored.Selection())
}

func TestPatchDecodesFromJSON(t *testing.T) {
	var p Patch
	body := `{"dataSourceType":"manual","manualSetpoint":{"activePower":5,"reactivePower":1}}`
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	require.NotNil(t, p.Type)
	assert.Equal(t, datasource.TypeManual, *p.Type)
	require.NotNil(t, p.Manual)
	assert.Equal(t, 5.0, p.Manual.ActivePowerKW)
}
