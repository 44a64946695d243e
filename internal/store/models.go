package store

import (
	"time"
)

// TelemetrySample is one environmental reading as reported on the telemetry
// topic. Rows are immutable: inserts and range-deletes only, never updates.
// Older firmware generations lacked dust/co2; those columns default to zero
// so numeric searches stay comparable across schema generations.
type TelemetrySample struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Light       float64   `json:"light"`
	Dust        float64   `json:"dust"`
	CO2         float64   `gorm:"column:co2" json:"co2"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
}

// DeviceAction records a device's confirmed on/off state at a point in time.
// The "current" state of a device is derived, not stored: it is the IsOn of
// the most recent row for that name.
type DeviceAction struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceName string    `gorm:"size:100;index" json:"deviceName"`
	IsOn       bool      `json:"isOn"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
}
