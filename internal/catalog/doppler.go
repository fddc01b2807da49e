package catalog

import "fmt"

// SpeedOfLight in km/s, matching range-rate units.
const SpeedOfLight = 299792.458

// DopplerFraction converts a range-rate (km/s, positive receding) into the
// fractional frequency shift applied to transmitter frequencies.
func DopplerFraction(rangeRate float64) float64 {
	return -rangeRate / SpeedOfLight
}

// Direction distinguishes uplink from downlink frequencies; the Doppler
// correction is applied with opposite sign to each.
type Direction int

const (
	Uplink Direction = iota
	Downlink
)

func (d Direction) String() string {
	switch d {
	case Uplink:
		return "uplink"
	case Downlink:
		return "downlink"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "uplink":
		*d = Uplink
	case "downlink":
		*d = Downlink
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Frequency is a base frequency in Hz plus the Doppler fraction most
// recently distributed to it.
type Frequency struct {
	Base            float64   `json:"base_hz"`
	Direction       Direction `json:"direction"`
	DopplerFraction float64   `json:"doppler_fraction"`
}

// Shifted returns base + base·f for uplinks and base − base·f for downlinks.
func (f Frequency) Shifted() float64 {
	switch f.Direction {
	case Uplink:
		return f.Base + f.Base*f.DopplerFraction
	case Downlink:
		return f.Base - f.Base*f.DopplerFraction
	default:
		return f.Base
	}
}

// Set reports whether the frequency carries a base value.
func (f Frequency) Set() bool { return f.Base != 0 }
