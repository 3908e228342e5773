package models

import "fmt"

// AlertKind identifies which threshold a reading crossed.
type AlertKind string

const (
	AlertRain            AlertKind = "rain"
	AlertHighTemperature AlertKind = "high_temperature"
	AlertLowTemperature  AlertKind = "low_temperature"
)

// AlertKinds lists every kind in evaluation order.
var AlertKinds = []AlertKind{AlertRain, AlertHighTemperature, AlertLowTemperature}

// ParseAlertKind converts a stored alert_type value back to an AlertKind.
func ParseAlertKind(s string) (AlertKind, error) {
	for _, k := range AlertKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown alert kind %q", s)
}

func (k AlertKind) String() string {
	return string(k)
}
