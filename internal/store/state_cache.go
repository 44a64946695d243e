package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateCache keeps the most recent telemetry sample and per-device state in
// redis as a fast path for dashboard reads. It is optional: a nil cache is
// skipped everywhere, and cache errors never fail the caller's operation.
type StateCache struct{ rdb *redis.Client }

func NewStateCache(rdb *redis.Client) *StateCache { return &StateCache{rdb: rdb} }

const latestSampleKey = "telemetry:latest"

func deviceKey(name string) string { return "device:state:" + strings.ToLower(name) }

func (c *StateCache) SetLatestSample(ctx context.Context, s *TelemetrySample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, latestSampleKey, b, 24*time.Hour).Err()
}

func (c *StateCache) LatestSample(ctx context.Context) (*TelemetrySample, error) {
	b, err := c.rdb.Get(ctx, latestSampleKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s TelemetrySample
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *StateCache) SetDeviceState(ctx context.Context, a *DeviceAction) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, deviceKey(a.DeviceName), b, 24*time.Hour).Err()
}

func (c *StateCache) DeviceState(ctx context.Context, name string) (*DeviceAction, error) {
	b, err := c.rdb.Get(ctx, deviceKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a DeviceAction
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
