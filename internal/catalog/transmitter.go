package catalog

import (
	"encoding/json"
	"errors"
)

// ErrTransmitterNotFound is returned when selecting an id the satellite does
// not own.
var ErrTransmitterNotFound = errors.New("transmitter not found")

// Transmitter is a radio channel owned by exactly one Satellite. It holds no
// reference back to the satellite; the owner pushes Doppler updates into it.
type Transmitter struct {
	ID          string                     `json:"uuid"`
	Description string                     `json:"description"`
	Uplink      Frequency                  `json:"uplink"`
	Downlink    Frequency                  `json:"downlink"`
	Mode        string                     `json:"mode,omitempty"`
	Baud        float64                    `json:"baud,omitempty"`
	Status      string                     `json:"status,omitempty"`
	Alive       bool                       `json:"alive"`
	Selected    bool                       `json:"selected"`
	CatalogID   int                        `json:"norad_cat_id"`
	Extensions  map[string]json.RawMessage `json:"extensions,omitempty"`
}

// NewTransmitter builds a transmitter from a validated entry. The uplink base
// is uplink_low and the downlink base is downlink_high.
func NewTransmitter(e TransmitterEntry) (*Transmitter, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	t := &Transmitter{
		ID:          e.UUID,
		Description: *e.Description,
		Uplink:      Frequency{Direction: Uplink},
		Downlink:    Frequency{Direction: Downlink},
		Mode:        e.Mode,
		Status:      e.Status,
		Alive:       true,
		CatalogID:   *e.NoradCatID,
		Extensions:  e.Extensions,
	}
	if e.UplinkLow != nil {
		t.Uplink.Base = float64(*e.UplinkLow)
	}
	if e.DownlinkHigh != nil {
		t.Downlink.Base = float64(*e.DownlinkHigh)
	}
	if e.Baud != nil {
		t.Baud = *e.Baud
	}
	if e.Alive != nil {
		t.Alive = *e.Alive
	}
	return t, nil
}

func (t *Transmitter) applyDoppler(fraction float64) {
	t.Uplink.DopplerFraction = fraction
	t.Downlink.DopplerFraction = fraction
}
