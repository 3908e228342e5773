//go:build integration

package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/testhelpers"
)

func newLiveClient(t *testing.T) *client.OpenWeatherClient {
	t.Helper()
	apiKey, apiURL := testhelpers.LiveProviderConfig(t)
	c, err := client.NewOpenWeatherClient(apiKey, apiURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	c := newLiveClient(t)
	if err := c.ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_Fetch_Integration(t *testing.T) {
	c := newLiveClient(t)
	snap, err := c.Fetch(context.Background(), "London")
	if err != nil {
		t.Fatalf("Fetch(London) error = %v", err)
	}
	if snap.Condition == "" {
		t.Error("Fetch(London) returned empty condition")
	}
	if snap.TemperatureCelsius < -90 || snap.TemperatureCelsius > 60 {
		t.Errorf("TemperatureCelsius = %v, outside plausible metric range", snap.TemperatureCelsius)
	}
}

func TestOpenWeatherClient_Fetch_UnknownCity_Integration(t *testing.T) {
	c := newLiveClient(t)
	_, err := c.Fetch(context.Background(), "Qwxzyvillenotacity")
	if !errors.Is(err, client.ErrLocationNotFound) {
		t.Errorf("Fetch() error = %v, want ErrLocationNotFound", err)
	}
}
