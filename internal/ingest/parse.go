package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sensor-hub/internal/store"
)

// ErrBadPayload classifies every parse failure. Malformed messages are
// discarded, never retried.
var ErrBadPayload = errors.New("malformed payload")

// telemetryFieldCount is the canonical wire arity: temperature, humidity,
// light, dust, co2. Shorter legacy frames are rejected rather than sniffed.
const telemetryFieldCount = 5

// ParseTelemetry decodes a comma-delimited numeric telemetry frame. Any
// field that fails to parse fails the whole record; there is no partial
// acceptance. The sample's timestamp is left zero for the pipeline to set.
func ParseTelemetry(payload []byte) (store.TelemetrySample, error) {
	parts := strings.Split(strings.TrimSpace(string(payload)), ",")
	if len(parts) != telemetryFieldCount {
		return store.TelemetrySample{}, fmt.Errorf("%w: want %d fields, got %d", ErrBadPayload, telemetryFieldCount, len(parts))
	}
	var vals [telemetryFieldCount]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return store.TelemetrySample{}, fmt.Errorf("%w: field %d %q is not a number", ErrBadPayload, i, strings.TrimSpace(p))
		}
		vals[i] = v
	}
	return store.TelemetrySample{
		Temperature: vals[0],
		Humidity:    vals[1],
		Light:       vals[2],
		Dust:        vals[3],
		CO2:         vals[4],
	}, nil
}

// ParseDeviceStatus decodes a device status report: a JSON object with a
// non-empty deviceName and a boolean isOn. Extra keys are ignored.
func ParseDeviceStatus(payload []byte) (store.DeviceAction, error) {
	var msg struct {
		DeviceName *string `json:"deviceName"`
		IsOn       *bool   `json:"isOn"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return store.DeviceAction{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if msg.DeviceName == nil || strings.TrimSpace(*msg.DeviceName) == "" {
		return store.DeviceAction{}, fmt.Errorf("%w: missing deviceName", ErrBadPayload)
	}
	if msg.IsOn == nil {
		return store.DeviceAction{}, fmt.Errorf("%w: missing isOn", ErrBadPayload)
	}
	return store.DeviceAction{
		DeviceName: strings.TrimSpace(*msg.DeviceName),
		IsOn:       *msg.IsOn,
	}, nil
}
