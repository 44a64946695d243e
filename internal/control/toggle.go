package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sensor-hub/internal/store"
)

// ErrEmptyName rejects a toggle request with no device name.
var ErrEmptyName = errors.New("device name is empty")

// ErrPublish marks a broker publish failure. Nothing was stored, so the
// device's recorded state is still consistent.
var ErrPublish = errors.New("publish failed")

// Publisher publishes a control payload to the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Command describes the control message a toggle request produced.
type Command struct {
	DeviceName string `json:"deviceName"`
	TurnOn     bool   `json:"turnOn"`
	Payload    string `json:"payload"`
}

// Toggler flips a device by publishing the inverse of its current state on
// the control topic. It never writes a DeviceAction row itself: the row is
// written only when the device's own status report round-trips through
// ingestion, so stored state always reflects confirmed state.
type Toggler struct {
	Repo         *store.Repo
	Publisher    Publisher
	ControlTopic string
}

func (t *Toggler) Toggle(ctx context.Context, deviceName string) (Command, error) {
	name := strings.TrimSpace(deviceName)
	if name == "" {
		return Command{}, ErrEmptyName
	}

	currentOn := false
	last, err := t.Repo.LatestAction(ctx, name)
	switch {
	case err == nil:
		currentOn = last.IsOn
	case errors.Is(err, store.ErrNotFound):
		// A device never seen defaults to off.
	default:
		return Command{}, err
	}

	turnOn := !currentOn
	payload := controlID(name) + "_" + onOff(turnOn)
	if err := t.Publisher.Publish(t.ControlTopic, []byte(payload)); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrPublish, err)
	}

	return Command{DeviceName: name, TurnOn: turnOn, Payload: payload}, nil
}

// controlID maps a logical device name to its wire identifier. The light is
// physically a bulb; everything else passes through lower-cased.
func controlID(name string) string {
	n := strings.ToLower(name)
	if n == "light" {
		return "bulb"
	}
	return n
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
