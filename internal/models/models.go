package models

import "time"

// City is a watchlist entry. Name is unique and case-sensitive as provided.
type City struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Snapshot is the current conditions returned by the weather provider.
type Snapshot struct {
	TemperatureCelsius float64 `json:"temperatureCelsius"`
	Condition          string  `json:"condition"`
}

// Reading is one persisted observation for a city. Immutable after creation.
type Reading struct {
	ID                 int64     `json:"id"`
	CityID             int64     `json:"cityId"`
	TemperatureCelsius float64   `json:"temperatureCelsius"`
	Condition          string    `json:"condition"`
	ObservedAt         time.Time `json:"observedAt"`
}

// ReadingView is a Reading joined with its city name for history endpoints.
type ReadingView struct {
	Reading
	CityName string `json:"cityName"`
}

// AlertRecord is one raised alert. Append-only; identical conditions on
// consecutive sweeps produce separate records.
type AlertRecord struct {
	ID       int64     `json:"id"`
	CityID   int64     `json:"cityId"`
	Kind     AlertKind `json:"kind"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raisedAt"`
}

// AlertView is an AlertRecord joined with its city name.
type AlertView struct {
	AlertRecord
	CityName string `json:"cityName"`
}
