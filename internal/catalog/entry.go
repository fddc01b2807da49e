// Package catalog holds the satellite and transmitter records ingested from a
// SatNOGS-style catalog, their validation rules and the Doppler distribution
// that keeps each transmitter's frequencies in step with its satellite's
// latest prediction.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SentinelID is the placeholder catalog number some catalog entries carry
// instead of a real NORAD id.
const SentinelID = 99999

var (
	// ErrInvalidEntry is matched by every *ValidationError.
	ErrInvalidEntry = errors.New("invalid catalog entry")

	// ErrSentinelID marks entries whose id is null or SentinelID.
	ErrSentinelID = errors.New("sentinel catalog id")
)

// ValidationError describes why one ingested record was rejected.
type ValidationError struct {
	Kind     string // "satellite" or "transmitter"
	Key      string // best-effort record key for logs
	Field    string
	Reason   string
	sentinel bool
}

func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s %s", e.Kind, e.Key, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidEntry || (e.sentinel && target == ErrSentinelID)
}

// SatelliteEntry is one record from the satellites catalog. Fields this
// package does not interpret are kept in Extensions.
type SatelliteEntry struct {
	NoradCatID *int                       `json:"norad_cat_id" msgpack:"norad_cat_id"`
	Name       string                     `json:"name" msgpack:"name"`
	Status     string                     `json:"status,omitempty" msgpack:"status"`
	Extensions map[string]json.RawMessage `json:"-" msgpack:"extensions"`
}

var satelliteKeys = []string{"norad_cat_id", "name", "status"}

func (e *SatelliteEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain SatelliteEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = SatelliteEntry(p)
	e.Extensions = extensions(raw, satelliteKeys)
	return nil
}

func (e SatelliteEntry) MarshalJSON() ([]byte, error) {
	type plain SatelliteEntry
	return mergeJSON(plain(e), e.Extensions)
}

// Validate rejects entries without a usable id or a name.
func (e SatelliteEntry) Validate() error {
	if e.NoradCatID == nil {
		return &ValidationError{Kind: "satellite", Key: e.Name, Field: "norad_cat_id", Reason: "is null or missing", sentinel: true}
	}
	key := fmt.Sprint(*e.NoradCatID)
	if *e.NoradCatID == SentinelID {
		return &ValidationError{Kind: "satellite", Key: key, Field: "norad_cat_id", Reason: "is the 99999 placeholder", sentinel: true}
	}
	if *e.NoradCatID <= 0 {
		return &ValidationError{Kind: "satellite", Key: key, Field: "norad_cat_id", Reason: "must be positive"}
	}
	if e.Name == "" {
		return &ValidationError{Kind: "satellite", Key: key, Field: "name", Reason: "is missing"}
	}
	return nil
}

// TransmitterEntry is one record from the transmitters catalog. Frequencies
// are in Hz.
type TransmitterEntry struct {
	UUID         string                     `json:"uuid" msgpack:"uuid"`
	Description  *string                    `json:"description" msgpack:"description"`
	Alive        *bool                      `json:"alive,omitempty" msgpack:"alive"`
	UplinkLow    *int64                     `json:"uplink_low" msgpack:"uplink_low"`
	UplinkHigh   *int64                     `json:"uplink_high" msgpack:"uplink_high"`
	DownlinkLow  *int64                     `json:"downlink_low" msgpack:"downlink_low"`
	DownlinkHigh *int64                     `json:"downlink_high" msgpack:"downlink_high"`
	Mode         string                     `json:"mode" msgpack:"mode"`
	Baud         *float64                   `json:"baud" msgpack:"baud"`
	NoradCatID   *int                       `json:"norad_cat_id" msgpack:"norad_cat_id"`
	Status       string                     `json:"status,omitempty" msgpack:"status"`
	Extensions   map[string]json.RawMessage `json:"-" msgpack:"extensions"`
}

var transmitterKeys = []string{
	"uuid", "description", "alive", "uplink_low", "uplink_high",
	"downlink_low", "downlink_high", "mode", "baud", "norad_cat_id", "status",
}

func (e *TransmitterEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	type plain TransmitterEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = TransmitterEntry(p)
	e.Extensions = extensions(raw, transmitterKeys)
	return nil
}

func (e TransmitterEntry) MarshalJSON() ([]byte, error) {
	type plain TransmitterEntry
	return mergeJSON(plain(e), e.Extensions)
}

// Validate requires uuid, a description and a catalog id.
func (e TransmitterEntry) Validate() error {
	if e.UUID == "" {
		return &ValidationError{Kind: "transmitter", Field: "uuid", Reason: "is missing"}
	}
	if e.Description == nil {
		return &ValidationError{Kind: "transmitter", Key: e.UUID, Field: "description", Reason: "is missing"}
	}
	if e.NoradCatID == nil {
		return &ValidationError{Kind: "transmitter", Key: e.UUID, Field: "norad_cat_id", Reason: "is null or missing", sentinel: true}
	}
	return nil
}

func extensions(raw map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	for _, k := range known {
		delete(raw, k)
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// mergeJSON encodes v and folds ext into the resulting object. Known fields
// win over extension keys with the same name.
func mergeJSON(v any, ext map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(ext) == 0 {
		return base, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(fields)+len(ext))
	for k, v := range ext {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}
