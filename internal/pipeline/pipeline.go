// Package pipeline runs the per-city check: fetch, persist, evaluate, emit.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/alert"
	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/observability"
	"github.com/kjstillabower/weather-watchlist-service/internal/traffic"
)

// ReadingWriter persists readings.
type ReadingWriter interface {
	InsertReading(ctx context.Context, r models.Reading) (models.Reading, error)
}

// AlertEmitter records a triggered alert.
type AlertEmitter interface {
	Emit(ctx context.Context, cityID int64, kind models.AlertKind, message string)
}

// Pipeline checks one city at a time. It holds no per-run state, so one
// Pipeline may serve concurrent Run calls for different cities.
type Pipeline struct {
	source  client.WeatherSource
	store   ReadingWriter
	emitter AlertEmitter
	logger  *zap.Logger
	now     func() time.Time
}

// New returns a Pipeline wired to its collaborators.
func New(source client.WeatherSource, store ReadingWriter, emitter AlertEmitter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:  source,
		store:   store,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Run checks city. It never returns an error or panics into the caller:
// a failed fetch skips the city for this cycle and storage failures are logged.
func (p *Pipeline) Run(ctx context.Context, city models.City) {
	logger := p.logger.With(zap.Int64("city_id", city.ID), zap.String("city", city.Name))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("city check panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()

	snap, err := p.source.Fetch(ctx, city.Name)
	if err != nil {
		traffic.RecordFailure()
		observability.CityChecksTotal.WithLabelValues("fetch_failed").Inc()
		logger.Debug("fetch failed, skipping city this cycle",
			zap.String("reason", string(client.CategorizeError(err))),
			zap.Error(err))
		return
	}
	traffic.RecordSuccess()
	observability.CityChecksTotal.WithLabelValues("stored").Inc()

	now := p.now().UTC()
	reading := models.Reading{
		CityID:             city.ID,
		TemperatureCelsius: snap.TemperatureCelsius,
		Condition:          snap.Condition,
		ObservedAt:         now,
	}
	if _, err := p.store.InsertReading(ctx, reading); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("insert_reading").Inc()
		logger.Error("persist reading failed", zap.Error(err))
	}

	kinds := alert.Evaluate(snap.TemperatureCelsius, snap.Condition)
	for _, kind := range kinds {
		p.emitter.Emit(ctx, city.ID, kind, alert.Message(kind, city.Name, snap, now))
	}
	logger.Debug("city checked",
		zap.Float64("temperature_c", snap.TemperatureCelsius),
		zap.String("condition", snap.Condition),
		zap.Int("alerts", len(kinds)))
}
