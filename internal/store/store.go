// Package store persists the watchlist, readings and alerts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-watchlist-service/internal/models"
)

var (
	ErrCityExists   = errors.New("city already exists")
	ErrCityNotFound = errors.New("city not found")
)

// timestampLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') so stored values
// sort lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore implements the reading store, alert store and watchlist on SQLite.
// Every method is a single autocommit statement; SQLite serializes writers.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
// path ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn, memory, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if memory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	logger.Info("store opened", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// buildDSN enables foreign keys (for ON DELETE CASCADE), a busy timeout for
// concurrent writers and WAL for file-backed databases.
func buildDSN(path string) (dsn string, memory bool, err error) {
	if path == "" {
		return "", false, errors.New("store path is required")
	}
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", true, nil
	}

	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", false, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	params := "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, false, nil
	}
	return "file:" + path + "?" + params, false, nil
}

// Ping checks database reachability for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddCity inserts a watchlist entry. Returns ErrCityExists when the name is taken.
func (s *SQLiteStore) AddCity(ctx context.Context, name string) (models.City, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO cities (name) VALUES (?)", name)
	if err != nil {
		if isUniqueViolation(err) {
			return models.City{}, fmt.Errorf("%w: %s", ErrCityExists, name)
		}
		return models.City{}, fmt.Errorf("insert city: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.City{}, fmt.Errorf("insert city id: %w", err)
	}
	return models.City{ID: id, Name: name}, nil
}

// DeleteCity removes a watchlist entry and, by cascade, its readings and alerts.
func (s *SQLiteStore) DeleteCity(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cities WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete city: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete city rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrCityNotFound, name)
	}
	return nil
}

// ListCities returns the watchlist in alphabetical order.
func (s *SQLiteStore) ListCities(ctx context.Context) ([]models.City, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM cities ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer s.closeRows(rows, "cities")

	out := []models.City{}
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertReading appends a reading. A zero ObservedAt is set to now.
func (s *SQLiteStore) InsertReading(ctx context.Context, r models.Reading) (models.Reading, error) {
	if r.ObservedAt.IsZero() {
		r.ObservedAt = time.Now()
	}
	r.ObservedAt = r.ObservedAt.UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO weather_data (city_id, temperature, weather_condition, timestamp) VALUES (?, ?, ?, ?)",
		r.CityID, r.TemperatureCelsius, r.Condition, r.ObservedAt.Format(timestampLayout))
	if err != nil {
		return models.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return models.Reading{}, fmt.Errorf("insert reading id: %w", err)
	}
	return r, nil
}

// InsertAlert appends an alert record. A zero RaisedAt is set to now.
func (s *SQLiteStore) InsertAlert(ctx context.Context, a models.AlertRecord) (models.AlertRecord, error) {
	if a.RaisedAt.IsZero() {
		a.RaisedAt = time.Now()
	}
	a.RaisedAt = a.RaisedAt.UTC().Truncate(time.Millisecond)
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO alerts (city_id, alert_type, message, timestamp) VALUES (?, ?, ?, ?)",
		a.CityID, a.Kind.String(), a.Message, a.RaisedAt.Format(timestampLayout))
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("insert alert: %w", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return models.AlertRecord{}, fmt.Errorf("insert alert id: %w", err)
	}
	return a, nil
}

// ListReadings returns readings joined with city name, newest first.
// limit <= 0 returns all rows.
func (s *SQLiteStore) ListReadings(ctx context.Context, limit int) ([]models.ReadingView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.city_id, c.name, w.temperature, w.weather_condition, w.timestamp
		FROM weather_data w
		JOIN cities c ON c.id = w.city_id
		ORDER BY w.timestamp DESC, w.id DESC
		LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer s.closeRows(rows, "readings")

	out := []models.ReadingView{}
	for rows.Next() {
		var v models.ReadingView
		var ts string
		if err := rows.Scan(&v.ID, &v.CityID, &v.CityName, &v.TemperatureCelsius, &v.Condition, &ts); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if v.ObservedAt, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAlerts returns alerts joined with city name, newest first.
// limit <= 0 returns all rows.
func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]models.AlertView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.city_id, c.name, a.alert_type, a.message, a.timestamp
		FROM alerts a
		JOIN cities c ON c.id = a.city_id
		ORDER BY a.timestamp DESC, a.id DESC
		LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer s.closeRows(rows, "alerts")

	out := []models.AlertView{}
	for rows.Next() {
		var v models.AlertView
		var kind, ts string
		if err := rows.Scan(&v.ID, &v.CityID, &v.CityName, &kind, &v.Message, &ts); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if v.Kind, err = models.ParseAlertKind(kind); err != nil {
			return nil, err
		}
		if v.RaisedAt, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		s.logger.Error("close rows", zap.String("query", what), zap.Error(err))
	}
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
