package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-watchlist-service/internal/alert"
	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
)

type fakeSource struct {
	snapshots map[string]models.Snapshot
	errs      map[string]error
	panicOn   string
}

func (f *fakeSource) Fetch(ctx context.Context, city string) (models.Snapshot, error) {
	if city == f.panicOn {
		panic("provider exploded")
	}
	if err, ok := f.errs[city]; ok {
		return models.Snapshot{}, err
	}
	snap, ok := f.snapshots[city]
	if !ok {
		return models.Snapshot{}, client.ErrLocationNotFound
	}
	return snap, nil
}

type fakeStore struct {
	mu         sync.Mutex
	readingErr error
	alertErr   error
	readings   []models.Reading
	alerts     []models.AlertRecord
}

func (f *fakeStore) InsertReading(ctx context.Context, r models.Reading) (models.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readingErr != nil {
		return models.Reading{}, f.readingErr
	}
	r.ID = int64(len(f.readings) + 1)
	f.readings = append(f.readings, r)
	return r, nil
}

func (f *fakeStore) InsertAlert(ctx context.Context, a models.AlertRecord) (models.AlertRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alertErr != nil {
		return models.AlertRecord{}, f.alertErr
	}
	a.ID = int64(len(f.alerts) + 1)
	f.alerts = append(f.alerts, a)
	return a, nil
}

func (f *fakeStore) alertKinds() map[models.AlertKind]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[models.AlertKind]int)
	for _, a := range f.alerts {
		out[a.Kind]++
	}
	return out
}

func newTestPipeline(src *fakeSource, store *fakeStore, logger *zap.Logger) *Pipeline {
	p := New(src, store, alert.NewEmitter(store, logger), logger)
	p.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

// TestPipeline_Run_HighTemperature covers a hot clear day: one reading and
// exactly one HighTemperature alert.
func TestPipeline_Run_HighTemperature(t *testing.T) {
	src := &fakeSource{snapshots: map[string]models.Snapshot{
		"Paris": {TemperatureCelsius: 32, Condition: "Clear"},
	}}
	store := &fakeStore{}
	p := newTestPipeline(src, store, zap.NewNop())

	p.Run(context.Background(), models.City{ID: 1, Name: "Paris"})

	if len(store.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(store.readings))
	}
	r := store.readings[0]
	if r.CityID != 1 || r.TemperatureCelsius != 32 || r.Condition != "Clear" {
		t.Errorf("reading = %+v, want city 1, 32, Clear", r)
	}
	if r.ObservedAt.IsZero() {
		t.Error("ObservedAt should be set by the pipeline")
	}
	kinds := store.alertKinds()
	if kinds[models.AlertHighTemperature] != 1 || kinds[models.AlertRain] != 0 || kinds[models.AlertLowTemperature] != 0 {
		t.Errorf("alert kinds = %v, want exactly one high_temperature", kinds)
	}
}

// TestPipeline_Run_Rain covers a mild rainy day: one reading, one Rain alert,
// no temperature alert.
func TestPipeline_Run_Rain(t *testing.T) {
	src := &fakeSource{snapshots: map[string]models.Snapshot{
		"London": {TemperatureCelsius: 15, Condition: "Light Rain"},
	}}
	store := &fakeStore{}
	p := newTestPipeline(src, store, zap.NewNop())

	p.Run(context.Background(), models.City{ID: 2, Name: "London"})

	if len(store.readings) != 1 {
		t.Fatalf("readings = %d, want 1", len(store.readings))
	}
	kinds := store.alertKinds()
	if len(store.alerts) != 1 || kinds[models.AlertRain] != 1 {
		t.Errorf("alert kinds = %v, want exactly one rain", kinds)
	}
	if store.alerts[0].CityID != 2 {
		t.Errorf("alert city = %d, want 2", store.alerts[0].CityID)
	}
}

func TestPipeline_Run_FetchFailureStoresNothing(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := &fakeSource{errs: map[string]error{"Paris": client.ErrUpstreamFailure}}
	store := &fakeStore{}
	p := newTestPipeline(src, store, zap.New(core))

	p.Run(context.Background(), models.City{ID: 1, Name: "Paris"})

	if len(store.readings) != 0 || len(store.alerts) != 0 {
		t.Errorf("readings = %d, alerts = %d, want 0 and 0", len(store.readings), len(store.alerts))
	}
	entries := logs.FilterMessage("fetch failed, skipping city this cycle").All()
	if len(entries) != 1 {
		t.Fatalf("skip logs = %d, want 1", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("skip log level = %v, want debug", entries[0].Level)
	}
}

// TestPipeline_Run_ReadingPersistFailureStillEmitsAlerts verifies that a
// failed reading insert does not stop alert evaluation and emission.
func TestPipeline_Run_ReadingPersistFailureStillEmitsAlerts(t *testing.T) {
	src := &fakeSource{snapshots: map[string]models.Snapshot{
		"Cairo": {TemperatureCelsius: 38, Condition: "Rain"},
	}}
	store := &fakeStore{readingErr: errors.New("database is locked")}
	p := newTestPipeline(src, store, zap.NewNop())

	p.Run(context.Background(), models.City{ID: 4, Name: "Cairo"})

	kinds := store.alertKinds()
	if kinds[models.AlertRain] != 1 || kinds[models.AlertHighTemperature] != 1 {
		t.Errorf("alert kinds = %v, want rain and high_temperature", kinds)
	}
}

// TestPipeline_Run_AlertPersistFailureContinues verifies that every
// triggered kind is still attempted when alert inserts fail.
func TestPipeline_Run_AlertPersistFailureContinues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := &fakeSource{snapshots: map[string]models.Snapshot{
		"Bergen": {TemperatureCelsius: 4, Condition: "Heavy Rain"},
	}}
	store := &fakeStore{alertErr: errors.New("constraint failed")}
	p := newTestPipeline(src, store, zap.New(core))

	p.Run(context.Background(), models.City{ID: 5, Name: "Bergen"})

	if len(store.readings) != 1 {
		t.Errorf("readings = %d, want 1", len(store.readings))
	}
	if n := logs.FilterMessage("weather alert").Len(); n != 2 {
		t.Errorf("alert notifications = %d, want 2", n)
	}
	if n := logs.FilterMessage("persist alert failed").Len(); n != 2 {
		t.Errorf("persist failures logged = %d, want 2", n)
	}
}

func TestPipeline_Run_RecoversFromPanic(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := &fakeSource{panicOn: "Paris"}
	p := newTestPipeline(src, &fakeStore{}, zap.New(core))

	p.Run(context.Background(), models.City{ID: 1, Name: "Paris"})

	if n := logs.FilterMessage("city check panicked").Len(); n != 1 {
		t.Errorf("panic logs = %d, want 1", n)
	}
}
