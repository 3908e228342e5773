package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/observability"
)

// AlertWriter persists alert records.
type AlertWriter interface {
	InsertAlert(ctx context.Context, a models.AlertRecord) (models.AlertRecord, error)
}

// Emitter persists alerts and notifies operators through the log. The
// notification does not depend on the storage outcome.
type Emitter struct {
	store  AlertWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewEmitter returns an Emitter writing to store and notifying via logger.
func NewEmitter(store AlertWriter, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{store: store, logger: logger, now: time.Now}
}

// Emit records one alert. Persistence errors are logged and swallowed.
func (e *Emitter) Emit(ctx context.Context, cityID int64, kind models.AlertKind, message string) {
	observability.AlertsRaisedTotal.WithLabelValues(kind.String()).Inc()

	rec := models.AlertRecord{
		CityID:   cityID,
		Kind:     kind,
		Message:  message,
		RaisedAt: e.now().UTC(),
	}
	saved, err := e.store.InsertAlert(ctx, rec)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("insert_alert").Inc()
		e.logger.Error("persist alert failed",
			zap.Int64("city_id", cityID),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}

	e.logger.Warn("weather alert",
		zap.Int64("city_id", cityID),
		zap.String("kind", kind.String()),
		zap.String("message", message),
		zap.Int64("alert_id", saved.ID),
		zap.Bool("persisted", err == nil))
}
