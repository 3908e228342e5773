// Package testhelpers provides a stand-in weather provider and store setup
// shared by tests that exercise more than one package.
package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/store"
)

// TestAPIKey passes the client's key length check.
const TestAPIKey = "valid-api-key-12345"

// Provider is an httptest server that answers OpenWeather current-weather
// requests from a fixed table. Unknown cities get 404. Lookups are
// case-insensitive on the q parameter, like the real provider.
type Provider struct {
	Server *httptest.Server

	mu     sync.Mutex
	cities map[string]models.Snapshot
	status int
	calls  atomic.Int64
}

// NewProvider starts a Provider seeded with cities and closes it on test cleanup.
func NewProvider(t *testing.T, cities map[string]models.Snapshot) *Provider {
	t.Helper()
	p := &Provider{cities: make(map[string]models.Snapshot)}
	for name, snap := range cities {
		p.cities[strings.ToLower(name)] = snap
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

func (p *Provider) serve(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	p.mu.Lock()
	status := p.status
	snap, ok := p.cities[strings.ToLower(r.URL.Query().Get("q"))]
	p.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if r.URL.Query().Get("appid") != TestAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"main":    map[string]float64{"temp": snap.TemperatureCelsius},
		"weather": []map[string]string{{"main": snap.Condition}},
	})
}

// SetCity adds or replaces a city's conditions.
func (p *Provider) SetCity(name string, snap models.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cities[strings.ToLower(name)] = snap
}

// FailWith makes every request answer with status. Zero restores normal answers.
func (p *Provider) FailWith(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Calls returns the number of requests served.
func (p *Provider) Calls() int64 {
	return p.calls.Load()
}

// Client returns an OpenWeatherClient pointed at the Provider.
func (p *Provider) Client(t *testing.T) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(TestAPIKey, p.Server.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// NewStore opens a migrated SQLite store in a temp dir and closes it on cleanup.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "weather.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// LiveProviderConfig returns the key and URL for tests against the real
// provider. Skips the test when WEATHER_API_KEY is not set.
func LiveProviderConfig(t *testing.T) (apiKey, apiURL string) {
	t.Helper()
	apiKey = os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping live provider test")
	}
	apiURL = os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	return apiKey, apiURL
}
