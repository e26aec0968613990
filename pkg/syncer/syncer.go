package syncer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/kernel"
	"github.com/pgsim/devicectl/pkg/store"
	"github.com/pgsim/devicectl/pkg/units"
)

// Remote mode vocabulary of the kernel. Local source types map onto
// these on the wire.
const (
	ModeManual     = "manual"
	ModeRandom     = "random_data"
	ModeHistorical = "historical_data"
)

func remoteMode(t datasource.SourceType) string {
	switch t {
	case datasource.TypeManual:
		return ModeManual
	case datasource.TypeRandom:
		return ModeRandom
	case datasource.TypeHistorical:
		return ModeHistorical
	}
	return ""
}

// Step names identify the remote command that ran or failed.
const (
	StepSetMode      = "set_device_mode"
	StepSetpoint     = "set_device_manual_setpoint"
	StepProperties   = "update_device_properties"
	StepRandomConfig = "set_device_random_config"
	StepHistorical   = "set_device_historical_config"
	StepSimParams    = "set_device_sim_params"
)

// Result is one device's sync outcome. A failed remote command never rolls
// the local store back, this result is how callers represent "saved
// locally but not synced".
type Result struct {
	DeviceID   string   `json:"deviceId"`
	Mode       string   `json:"mode,omitempty"`
	Synced     bool     `json:"synced"`
	Skipped    bool     `json:"skipped,omitempty"`
	SkipReason string   `json:"skipReason,omitempty"`
	Steps      []string `json:"steps,omitempty"`
	FailedStep string   `json:"failedStep,omitempty"`
	Error      string   `json:"error,omitempty"`
	Err        error    `json:"-"`
}

// BatchItem pairs a device with its config for a batch sync.
type BatchItem struct {
	DeviceID   string
	DeviceType string
	Config     datasource.Config
}

// Syncer pushes local configuration onto the kernel. Commands for one
// device run sequentially and each is awaited before the next, the first
// failure stops that device's chain. Distinct devices are independent of
// each other.
type Syncer struct {
	kernel kernel.Commander
}

// New builds a syncer. A nil commander means no kernel is configured and
// every sync is reported as skipped.
func New(k kernel.Commander) *Syncer {
	return &Syncer{kernel: k}
}

// SyncDevice pushes one device's active data source: set the mode first,
// then the variant payload. Deselected devices and drafts that fail
// validation are skipped without sending anything.
func (s *Syncer) SyncDevice(ctx context.Context, deviceID string, cfg datasource.Config, deviceType string) Result {
	res := Result{DeviceID: deviceID}
	if cfg.Type() == datasource.TypeNone {
		return s.skipped(res, "no data source selected")
	}
	if err := cfg.Validate(deviceType); err != nil {
		return s.skipped(res, err.Error())
	}
	if s.kernel == nil {
		return s.skipped(res, "kernel not configured")
	}
	res.Mode = remoteMode(cfg.Type())

	if err := s.kernel.SetDeviceMode(ctx, deviceID, res.Mode); err != nil {
		return s.failed(res, StepSetMode, err)
	}
	res.Steps = append(res.Steps, StepSetMode)

	switch cfg.Type() {
	case datasource.TypeManual:
		m, _ := cfg.Manual()
		if err := s.kernel.SetManualSetpoint(ctx, deviceID, m.ActivePowerKW, m.ReactivePowerKVAr); err != nil {
			return s.failed(res, StepSetpoint, err)
		}
		res.Steps = append(res.Steps, StepSetpoint)

		// mirror the setpoint into the MW denominated device properties
		props := map[string]interface{}{
			"p_mw":   units.KilowattsToMW(m.ActivePowerKW),
			"q_mvar": units.KilowattsToMW(m.ReactivePowerKVAr),
		}
		if err := s.kernel.UpdateDeviceProperties(ctx, deviceID, props); err != nil {
			return s.failed(res, StepProperties, err)
		}
		res.Steps = append(res.Steps, StepProperties)
	case datasource.TypeRandom:
		r, _ := cfg.Random()
		if err := s.kernel.SetRandomConfig(ctx, deviceID, r.MinPowerKW, r.MaxPowerKW); err != nil {
			return s.failed(res, StepRandomConfig, err)
		}
		res.Steps = append(res.Steps, StepRandomConfig)
	case datasource.TypeHistorical:
		h, _ := cfg.Historical()
		if err := s.kernel.SetHistoricalConfig(ctx, deviceID, h); err != nil {
			return s.failed(res, StepHistorical, err)
		}
		res.Steps = append(res.Steps, StepHistorical)
	}

	res.Synced = true
	logrus.WithFields(logrus.Fields{
		"device": deviceID,
		"mode":   res.Mode,
	}).Debug("device synced")
	return res
}

// SyncSimParams pushes the opaque simulation parameter bag, independent of
// the active data source.
func (s *Syncer) SyncSimParams(ctx context.Context, deviceID string, params store.SimParams) Result {
	res := Result{DeviceID: deviceID}
	if len(params) == 0 {
		return s.skipped(res, "no sim params")
	}
	if s.kernel == nil {
		return s.skipped(res, "kernel not configured")
	}
	if err := s.kernel.SetSimParams(ctx, deviceID, params); err != nil {
		return s.failed(res, StepSimParams, err)
	}
	res.Steps = append(res.Steps, StepSimParams)
	res.Synced = true
	return res
}

// SyncBatch syncs devices sequentially. One device failing never stops
// the others.
func (s *Syncer) SyncBatch(ctx context.Context, items []BatchItem) []Result {
	results := make([]Result, 0, len(items))
	for _, item := range items {
		results = append(results, s.SyncDevice(ctx, item.DeviceID, item.Config, item.DeviceType))
	}
	return results
}

func (s *Syncer) skipped(res Result, reason string) Result {
	res.Skipped = true
	res.SkipReason = reason
	logrus.WithField("device", res.DeviceID).Debugf("sync skipped: %s", reason)
	return res
}

func (s *Syncer) failed(res Result, step string, err error) Result {
	res.FailedStep = step
	res.Err = err
	res.Error = err.Error()
	logrus.WithFields(logrus.Fields{
		"device": res.DeviceID,
		"step":   step,
	}).Errorf("sync failed: %v", err)
	return res
}
