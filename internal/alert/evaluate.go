// Package alert decides which alert kinds a reading triggers and records
// raised alerts.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/weather-watchlist-service/internal/models"
)

const (
	HighTemperatureThreshold = 30.0
	LowTemperatureThreshold  = 10.0
)

// Evaluate returns the alert kinds triggered by a reading, in the order of
// models.AlertKinds. Rules are independent; the result depends only on the inputs.
func Evaluate(temperatureCelsius float64, condition string) []models.AlertKind {
	var kinds []models.AlertKind
	if strings.Contains(strings.ToLower(condition), "rain") {
		kinds = append(kinds, models.AlertRain)
	}
	if temperatureCelsius > HighTemperatureThreshold {
		kinds = append(kinds, models.AlertHighTemperature)
	}
	if temperatureCelsius < LowTemperatureThreshold {
		kinds = append(kinds, models.AlertLowTemperature)
	}
	return kinds
}

// Message renders the operator-facing text for an alert.
func Message(kind models.AlertKind, city string, snap models.Snapshot, at time.Time) string {
	ts := at.UTC().Format(time.RFC3339)
	switch kind {
	case models.AlertRain:
		return fmt.Sprintf("Rain alert for %s: %s at %s", city, snap.Condition, ts)
	case models.AlertHighTemperature:
		return fmt.Sprintf("High temperature alert for %s: %.1f°C at %s", city, snap.TemperatureCelsius, ts)
	case models.AlertLowTemperature:
		return fmt.Sprintf("Low temperature alert for %s: %.1f°C at %s", city, snap.TemperatureCelsius, ts)
	}
	return fmt.Sprintf("%s alert for %s at %s", kind, city, ts)
}
