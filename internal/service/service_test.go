package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-watchlist-service/internal/cache"
	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
)

type fakeSource struct {
	mu    sync.Mutex
	snaps map[string]models.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Fetch(ctx context.Context, city string) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.Snapshot{}, f.err
	}
	snap, ok := f.snaps[city]
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", client.ErrLocationNotFound, city)
	}
	return snap, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu       sync.Mutex
	cities   map[string]models.City
	nextID   int64
	readings []models.ReadingView
	alerts   []models.AlertView
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{cities: make(map[string]models.City)}
}

func (f *fakeStore) AddCity(ctx context.Context, name string) (models.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.City{}, f.err
	}
	if _, ok := f.cities[name]; ok {
		return models.City{}, fmt.Errorf("%w: %s", ErrCityExists, name)
	}
	f.nextID++
	c := models.City{ID: f.nextID, Name: name}
	f.cities[name] = c
	return c, nil
}

func (f *fakeStore) DeleteCity(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.cities[name]; !ok {
		return fmt.Errorf("%w: %s", ErrCityNotFound, name)
	}
	delete(f.cities, name)
	return nil
}

func (f *fakeStore) ListCities(ctx context.Context) ([]models.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.City, 0, len(f.cities))
	for _, c := range f.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) ListReadings(ctx context.Context, limit int) ([]models.ReadingView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.readings) {
		return f.readings[:limit], nil
	}
	return f.readings, nil
}

func (f *fakeStore) ListAlerts(ctx context.Context, limit int) ([]models.AlertView, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.alerts) {
		return f.alerts[:limit], nil
	}
	return f.alerts, nil
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (models.Snapshot, bool, error) {
	return models.Snapshot{}, false, errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value models.Snapshot, ttl time.Duration) error {
	return errors.New("connection refused")
}

func newTestService(source *fakeSource, st *fakeStore, c cache.Cache) *WatchlistService {
	return NewWatchlistService(source, st, c, Options{LookupTTL: time.Minute, CoalesceTimeout: time.Second}, zap.NewNop())
}

func knownSource() *fakeSource {
	return &fakeSource{snaps: map[string]models.Snapshot{
		"Paris":    {TemperatureCelsius: 18, Condition: "Clear"},
		"New York": {TemperatureCelsius: 25, Condition: "Clouds"},
	}}
}

// TestAddCity_Success verifies that a known, trimmed city is stored with case preserved.
func TestAddCity_Success(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(knownSource(), st, cache.NewInMemoryCache())

	city, err := svc.AddCity(context.Background(), "  New York ")
	if err != nil {
		t.Fatalf("AddCity() error = %v", err)
	}
	if city.Name != "New York" || city.ID == 0 {
		t.Errorf("AddCity() = %+v", city)
	}
	if _, ok := st.cities["New York"]; !ok {
		t.Error("city not persisted")
	}
}

// TestAddCity_Errors verifies the error mapping for each rejection path.
func TestAddCity_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		sourceErr error
		preload   string
		wantErr   error
	}{
		{"empty", "   ", nil, "", ErrInvalidCity},
		{"invalid chars", "Par/is", nil, "", ErrInvalidCity},
		{"unknown to provider", "Atlantis", nil, "", ErrUnknownCity},
		{"already present", "Paris", nil, "Paris", ErrCityExists},
		{"provider down", "Paris", client.ErrUpstreamFailure, "", ErrProviderUnavailable},
		{"circuit open", "Paris", client.ErrCircuitOpen, "", ErrProviderUnavailable},
		{"provider rate limited", "Paris", client.ErrRateLimited, "", ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := knownSource()
			src.err = tt.sourceErr
			st := newFakeStore()
			if tt.preload != "" {
				_, _ = st.AddCity(context.Background(), tt.preload)
			}
			svc := newTestService(src, st, nil)

			_, err := svc.AddCity(context.Background(), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddCity() error = %v, want %v", err, tt.wantErr)
			}
			wantRows := 0
			if tt.preload != "" {
				wantRows = 1
			}
			if len(st.cities) != wantRows {
				t.Errorf("rows = %d, want %d", len(st.cities), wantRows)
			}
		})
	}
}

// TestAddCity_InvalidNameSkipsProvider verifies that validation fails before any provider call.
func TestAddCity_InvalidNameSkipsProvider(t *testing.T) {
	src := knownSource()
	svc := newTestService(src, newFakeStore(), nil)

	_, _ = svc.AddCity(context.Background(), "")
	if src.callCount() != 0 {
		t.Errorf("provider calls = %d, want 0", src.callCount())
	}
}

// TestAddCity_UsesLookupCache verifies that a cached lookup avoids a second provider call.
func TestAddCity_UsesLookupCache(t *testing.T) {
	src := knownSource()
	st := newFakeStore()
	svc := newTestService(src, st, cache.NewInMemoryCache())
	ctx := context.Background()

	if _, err := svc.AddCity(ctx, "Paris"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveCity(ctx, "Paris"); err != nil {
		t.Fatal(err)
	}
	// "paris" shares the cache key with "Paris", so it is accepted without a provider call.
	if _, err := svc.AddCity(ctx, "paris"); err != nil {
		t.Fatalf("AddCity(paris) error = %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", src.callCount())
	}
}

// TestAddCity_CacheErrorsFallThrough verifies that a broken cache does not block additions.
func TestAddCity_CacheErrorsFallThrough(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := knownSource()
	svc := NewWatchlistService(src, newFakeStore(), failingCache{}, Options{}, zap.New(core))

	if _, err := svc.AddCity(context.Background(), "Paris"); err != nil {
		t.Fatalf("AddCity() error = %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", src.callCount())
	}
	if logs.FilterMessage("cache get failed").Len() != 1 || logs.FilterMessage("cache set failed").Len() != 1 {
		t.Errorf("expected cache failure logs, got %v", logs.All())
	}
}

// TestAddCity_RequestLogger verifies that the request-scoped logger from context is used.
func TestAddCity_RequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := newTestService(knownSource(), newFakeStore(), nil)
	ctx := context.WithValue(context.Background(), "logger", zap.New(core))

	if _, err := svc.AddCity(ctx, "Paris"); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("city added").Len() != 1 {
		t.Errorf("expected 'city added' on request logger, got %v", logs.All())
	}
}

// TestRemoveCity verifies deletion and the not-found path.
func TestRemoveCity(t *testing.T) {
	st := newFakeStore()
	_, _ = st.AddCity(context.Background(), "Paris")
	svc := newTestService(knownSource(), st, nil)

	if err := svc.RemoveCity(context.Background(), "Paris"); err != nil {
		t.Fatalf("RemoveCity() error = %v", err)
	}
	if err := svc.RemoveCity(context.Background(), "Paris"); !errors.Is(err, ErrCityNotFound) {
		t.Errorf("second RemoveCity() error = %v, want ErrCityNotFound", err)
	}
}

// TestListCities_Alphabetical verifies that the watchlist passes through in store order.
func TestListCities_Alphabetical(t *testing.T) {
	st := newFakeStore()
	for _, n := range []string{"Tokyo", "Berlin"} {
		_, _ = st.AddCity(context.Background(), n)
	}
	svc := newTestService(knownSource(), st, nil)

	cities, err := svc.ListCities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cities) != 2 || cities[0].Name != "Berlin" {
		t.Errorf("ListCities() = %+v", cities)
	}
}

// TestListHistory_StoreError verifies that store failures propagate from the read paths.
func TestListHistory_StoreError(t *testing.T) {
	st := newFakeStore()
	st.err = errors.New("disk I/O error")
	svc := newTestService(knownSource(), st, nil)
	ctx := context.Background()

	if _, err := svc.ListCities(ctx); err == nil {
		t.Error("ListCities() expected error")
	}
	if _, err := svc.ListReadings(ctx, 0); err == nil {
		t.Error("ListReadings() expected error")
	}
	if _, err := svc.ListAlerts(ctx, 0); err == nil {
		t.Error("ListAlerts() expected error")
	}
}

// TestListReadings_Limit verifies that the limit is forwarded.
func TestListReadings_Limit(t *testing.T) {
	st := newFakeStore()
	st.readings = make([]models.ReadingView, 5)
	st.alerts = make([]models.AlertView, 5)
	svc := newTestService(knownSource(), st, nil)

	readings, _ := svc.ListReadings(context.Background(), 2)
	alerts, _ := svc.ListAlerts(context.Background(), 3)
	if len(readings) != 2 || len(alerts) != 3 {
		t.Errorf("got %d readings, %d alerts", len(readings), len(alerts))
	}
}
