package ingest

import (
	"context"
	"log/slog"
	"time"

	"sensor-hub/internal/store"
)

// Event names pushed to live dashboard sessions.
const (
	EventNewTelemetrySample    = "NewTelemetrySample"
	EventNewDeviceActionRecord = "NewDeviceActionRecord"
)

// MQTTMessage is the minimal surface the pipeline needs from an inbound
// broker message. It enables unit testing without a live broker.
type MQTTMessage interface {
	Topic() string
	Payload() []byte
}

// Publisher publishes a payload on a topic. Failures are transient and must
// never take the subscriber connection down.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Broadcaster fans a stored record out to live dashboard sessions. The
// pipeline never blocks on, or knows the cardinality of, subscribers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Ingestor owns the per-message pipeline: parse, persist, evaluate the
// alarm rule, publish the alarm command, broadcast. All collaborators are
// passed in explicitly; a failure in one message never affects the broker
// connection or the next message.
type Ingestor struct {
	Repo       *store.Repo
	Cache      *store.StateCache
	Publisher  Publisher
	Broadcast  Broadcaster
	AlarmTopic string
}

// HandleTelemetry processes one inbound telemetry frame. receivedAt is the
// ingestion instant; any device-supplied time is ignored.
func (i *Ingestor) HandleTelemetry(ctx context.Context, msg MQTTMessage, receivedAt time.Time) {
	s, err := ParseTelemetry(msg.Payload())
	if err != nil {
		slog.Warn("telemetry parse failed", "topic", msg.Topic(), "error", err)
		return
	}
	s.Timestamp = receivedAt.UTC()

	if err := i.Repo.InsertSample(ctx, &s); err != nil {
		slog.Error("telemetry insert failed", "topic", msg.Topic(), "error", err)
		return
	}

	cmd := EvaluateAlarm(s)
	if err := i.Publisher.Publish(i.AlarmTopic, []byte(cmd)); err != nil {
		// Transient broker hiccup; the command is republished with the next
		// sample anyway.
		slog.Error("alarm publish failed", "topic", i.AlarmTopic, "command", string(cmd), "error", err)
	}

	if i.Cache != nil {
		if err := i.Cache.SetLatestSample(ctx, &s); err != nil {
			slog.Warn("latest sample cache write failed", "error", err)
		}
	}

	if i.Broadcast != nil {
		i.Broadcast.Broadcast(EventNewTelemetrySample, s)
	}
	slog.Debug("telemetry stored", "id", s.ID, "ts", s.Timestamp)
}

// HandleDeviceStatus processes a device's own status report. This is the
// only place a DeviceAction row is written: toggle requests just command
// the device and wait for this confirmation to round-trip.
func (i *Ingestor) HandleDeviceStatus(ctx context.Context, msg MQTTMessage, receivedAt time.Time) {
	a, err := ParseDeviceStatus(msg.Payload())
	if err != nil {
		slog.Warn("device status parse failed", "topic", msg.Topic(), "error", err)
		return
	}
	a.Timestamp = receivedAt.UTC()

	if err := i.Repo.InsertAction(ctx, &a); err != nil {
		slog.Error("device action insert failed", "device", a.DeviceName, "error", err)
		return
	}

	if i.Cache != nil {
		if err := i.Cache.SetDeviceState(ctx, &a); err != nil {
			slog.Warn("device state cache write failed", "device", a.DeviceName, "error", err)
		}
	}

	if i.Broadcast != nil {
		i.Broadcast.Broadcast(EventNewDeviceActionRecord, a)
	}
	slog.Debug("device action stored", "device", a.DeviceName, "is_on", a.IsOn)
}
