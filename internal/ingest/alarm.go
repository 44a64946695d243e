package ingest

import (
	"sensor-hub/internal/store"
)

// AlarmCommand is the wire form of an alarm control message.
type AlarmCommand string

const (
	AlarmOn  AlarmCommand = "alarm_on"
	AlarmOff AlarmCommand = "alarm_off"
)

// Strictly-greater thresholds: a sample sitting exactly on a threshold does
// not trip the alarm.
const (
	alarmDustThreshold = 500
	alarmCO2Threshold  = 50
)

// EvaluateAlarm maps a sample to the alarm command it implies. Total and
// stateless: every sample produces a command, and the command is republished
// even when it repeats the previous state.
func EvaluateAlarm(s store.TelemetrySample) AlarmCommand {
	if s.Dust > alarmDustThreshold || s.CO2 > alarmCO2Threshold {
		return AlarmOn
	}
	return AlarmOff
}
