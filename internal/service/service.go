// Package service implements the watchlist CRUD and history reads behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/cache"
	"github.com/kjstillabower/weather-watchlist-service/internal/client"
	"github.com/kjstillabower/weather-watchlist-service/internal/models"
	"github.com/kjstillabower/weather-watchlist-service/internal/observability"
	"github.com/kjstillabower/weather-watchlist-service/internal/store"
	"github.com/kjstillabower/weather-watchlist-service/internal/validation"
)

var (
	ErrInvalidCity         = errors.New("invalid city")
	ErrUnknownCity         = errors.New("city unknown to weather provider")
	ErrProviderUnavailable = errors.New("weather provider unavailable")

	// Store conflicts pass through unchanged so callers can match either name.
	ErrCityExists   = store.ErrCityExists
	ErrCityNotFound = store.ErrCityNotFound
)

// Store is the persistence the watchlist service needs.
type Store interface {
	AddCity(ctx context.Context, name string) (models.City, error)
	DeleteCity(ctx context.Context, name string) error
	ListCities(ctx context.Context) ([]models.City, error)
	ListReadings(ctx context.Context, limit int) ([]models.ReadingView, error)
	ListAlerts(ctx context.Context, limit int) ([]models.AlertView, error)
}

// Options tunes lookup caching and name validation. Zero values use defaults.
type Options struct {
	LookupTTL       time.Duration
	CoalesceTimeout time.Duration
	MinNameLen      int
	MaxNameLen      int
}

// WatchlistService validates watchlist changes against the weather provider and
// serves history reads.
type WatchlistService struct {
	source    client.WeatherSource
	store     Store
	cache     cache.Cache
	ttl       time.Duration
	coalescer *lookupCoalescer
	minLen    int
	maxLen    int
	logger    *zap.Logger
}

// NewWatchlistService wires the service. lookupCache may be nil to always ask the provider.
func NewWatchlistService(source client.WeatherSource, st Store, lookupCache cache.Cache, opts Options, logger *zap.Logger) *WatchlistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LookupTTL <= 0 {
		opts.LookupTTL = 5 * time.Minute
	}
	if opts.MinNameLen <= 0 {
		opts.MinNameLen = validation.DefaultMinCityLen
	}
	if opts.MaxNameLen <= 0 {
		opts.MaxNameLen = validation.DefaultMaxCityLen
	}
	return &WatchlistService{
		source:    source,
		store:     st,
		cache:     lookupCache,
		ttl:       opts.LookupTTL,
		coalescer: newLookupCoalescer(opts.CoalesceTimeout),
		minLen:    opts.MinNameLen,
		maxLen:    opts.MaxNameLen,
		logger:    logger,
	}
}

// loggerFromContext returns the request-scoped logger if the middleware set one.
func (s *WatchlistService) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}

// AddCity validates the name, confirms the provider knows it and inserts it.
// The stored name is the trimmed input with case preserved.
func (s *WatchlistService) AddCity(ctx context.Context, name string) (models.City, error) {
	logger := s.loggerFromContext(ctx)

	trimmed, err := validation.ValidateCityName(name, s.minLen, s.maxLen)
	if err != nil {
		return models.City{}, fmt.Errorf("%w: %w", ErrInvalidCity, err)
	}

	if _, err := s.lookup(ctx, trimmed); err != nil {
		logger.Info("city lookup rejected", zap.String("city", trimmed), zap.Error(err))
		return models.City{}, err
	}

	city, err := s.store.AddCity(ctx, trimmed)
	if err != nil {
		if !errors.Is(err, ErrCityExists) {
			observability.StoreErrorsTotal.WithLabelValues("add_city").Inc()
		}
		return models.City{}, err
	}
	logger.Info("city added", zap.String("city", city.Name), zap.Int64("city_id", city.ID))
	return city, nil
}

// lookup asks the provider whether city exists, going through the cache first.
// Concurrent lookups for the same city share one provider call.
func (s *WatchlistService) lookup(ctx context.Context, city string) (models.Snapshot, error) {
	key := cache.LookupKey(city)
	logger := s.loggerFromContext(ctx)

	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get").Inc()
			logger.Warn("cache get failed", zap.String("city", key), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues("lookup").Inc()
			logger.Debug("cache hit", zap.String("city", key))
			return snap, nil
		}
	}

	// The shared call outlives any single caller's cancellation; the client timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	snap, shared, err := s.coalescer.Do(ctx, key, func() (models.Snapshot, error) {
		return s.source.Fetch(fetchCtx, city)
	})
	if err != nil {
		return models.Snapshot{}, classifyLookupError(city, err)
	}
	if shared {
		logger.Debug("lookup coalesced", zap.String("city", key))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, snap, s.ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("city", key), zap.Error(err))
		}
	}
	return snap, nil
}

func classifyLookupError(city string, err error) error {
	switch {
	case errors.Is(err, client.ErrLocationNotFound):
		return fmt.Errorf("%w: %s", ErrUnknownCity, city)
	case errors.Is(err, client.ErrEmptyCity):
		return fmt.Errorf("%w: %w", ErrInvalidCity, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}

// RemoveCity deletes a city and its history. Returns ErrCityNotFound when absent.
func (s *WatchlistService) RemoveCity(ctx context.Context, name string) error {
	if err := s.store.DeleteCity(ctx, name); err != nil {
		if !errors.Is(err, ErrCityNotFound) {
			observability.StoreErrorsTotal.WithLabelValues("delete_city").Inc()
		}
		return err
	}
	s.loggerFromContext(ctx).Info("city removed", zap.String("city", name))
	return nil
}

// ListCities returns the watchlist in alphabetical order.
func (s *WatchlistService) ListCities(ctx context.Context) ([]models.City, error) {
	cities, err := s.store.ListCities(ctx)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("list_cities").Inc()
		return nil, err
	}
	return cities, nil
}

// ListReadings returns readings newest first; limit <= 0 means all.
func (s *WatchlistService) ListReadings(ctx context.Context, limit int) ([]models.ReadingView, error) {
	readings, err := s.store.ListReadings(ctx, limit)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("list_readings").Inc()
		return nil, err
	}
	return readings, nil
}

// ListAlerts returns alerts newest first; limit <= 0 means all.
func (s *WatchlistService) ListAlerts(ctx context.Context, limit int) ([]models.AlertView, error) {
	alerts, err := s.store.ListAlerts(ctx, limit)
	if err != nil {
		observability.StoreErrorsTotal.WithLabelValues("list_alerts").Inc()
		return nil, err
	}
	return alerts, nil
}
