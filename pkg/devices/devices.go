package devices

// Device is one roster entry from the simulation kernel.
type Device struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"device_type"`
	Properties map[string]interface{} `json:"properties"`
}

const (
	TypeStaticGenerator = "static_generator"
	TypeLoad            = "load"
	TypeStorage         = "storage"
	TypeCharger         = "charger"
	TypeMeter           = "meter"
	TypeExternalGrid    = "external_grid"
)

// Controllable reports whether a device type accepts data-source
// configuration. Meters only measure and the external grid is the slack
// node, neither takes setpoints.
func Controllable(deviceType string) bool {
	switch deviceType {
	case TypeStaticGenerator, TypeLoad, TypeStorage, TypeCharger:
		return true
	}
	return false
}

// IsLoad reports whether historical csv configs for this device type
// require a load calculation instead of a single power column.
func IsLoad(deviceType string) bool {
	return deviceType == TypeLoad
}

// RatedPowerKW reads the nameplate power from roster properties. Kernel
// properties are MW denominated, p_mw first with sn_mva as fallback.
func RatedPowerKW(d Device) (float64, bool) {
	for _, key := range []string{"p_mw", "sn_mva"} {
		v, ok := d.Properties[key]
		if !ok {
			continue
		}
		if f, ok := v.(float64); ok {
			return f * 1000, true
		}
	}
	return 0, false
}
