// Package sqlite implements domain.HistoryStore on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	date                     TEXT PRIMARY KEY,
	temp                     REAL,
	humidity                 REAL,
	wind                     REAL,
	cloud                    REAL,
	rain                     REAL,
	fog_probability          REAL,
	castle_probability       REAL,
	castle_event_probability REAL,
	fog_score                REAL,
	castle_score             REAL,
	dew_point                REAL,
	dew_spread               REAL,
	event                    TEXT NOT NULL DEFAULT '',
	fog_observed             INTEGER NOT NULL DEFAULT 0,
	castle_visible           INTEGER NOT NULL DEFAULT 0,
	note                     TEXT NOT NULL DEFAULT '',
	updated_at               TEXT
)`

const columns = `date, temp, humidity, wind, cloud, rain,
	fog_probability, castle_probability, castle_event_probability,
	fog_score, castle_score, dew_point, dew_spread, event,
	fog_observed, castle_visible, note, updated_at`

const upsertPredicted = `
INSERT INTO history (date, temp, humidity, wind, cloud, rain,
	fog_probability, castle_probability, castle_event_probability,
	fog_score, castle_score, dew_point, dew_spread, event, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
	temp = excluded.temp,
	humidity = excluded.humidity,
	wind = excluded.wind,
	cloud = excluded.cloud,
	rain = excluded.rain,
	fog_probability = excluded.fog_probability,
	castle_probability = excluded.castle_probability,
	castle_event_probability = excluded.castle_event_probability,
	fog_score = excluded.fog_score,
	castle_score = excluded.castle_score,
	dew_point = excluded.dew_point,
	dew_spread = excluded.dew_spread,
	event = excluded.event,
	updated_at = excluded.updated_at`

const upsertObserved = `
INSERT INTO history (date, fog_observed, castle_visible, note)
VALUES (?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
	fog_observed = excluded.fog_observed,
	castle_visible = excluded.castle_visible,
	note = excluded.note`

const upsertRecord = `
INSERT INTO history (` + columns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
	temp = excluded.temp,
	humidity = excluded.humidity,
	wind = excluded.wind,
	cloud = excluded.cloud,
	rain = excluded.rain,
	fog_probability = excluded.fog_probability,
	castle_probability = excluded.castle_probability,
	castle_event_probability = excluded.castle_event_probability,
	fog_score = excluded.fog_score,
	castle_score = excluded.castle_score,
	dew_point = excluded.dew_point,
	dew_spread = excluded.dew_spread,
	event = excluded.event,
	fog_observed = excluded.fog_observed,
	castle_visible = excluded.castle_visible,
	note = excluded.note,
	updated_at = excluded.updated_at`

// Store is a SQLite-backed history table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; a single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}
	logger.Info("sqlite history store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM history WHERE date = ?`, domain.FormatDate(date))
	return scanOne(row)
}

func (s *Store) LatestBefore(ctx context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM history
		WHERE date < ?
		  AND (temp IS NOT NULL OR humidity IS NOT NULL OR wind IS NOT NULL OR cloud IS NOT NULL OR rain IS NOT NULL)
		ORDER BY date DESC
		LIMIT 1`, domain.FormatDate(date))
	return scanOne(row)
}

func (s *Store) UpsertPredicted(ctx context.Context, date time.Time, f domain.PredictedFields) error {
	_, err := s.db.ExecContext(ctx, upsertPredicted,
		domain.FormatDate(date),
		f.Temp, f.Humidity, f.Wind, f.Cloud, f.Rain,
		f.FogProbability, f.CastleProbability, f.EventProbability,
		f.FogScore, f.CastleScore, f.DewPoint, f.DewSpread,
		string(f.Event), formatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert predicted %s: %w", domain.FormatDate(date), err)
	}
	return nil
}

func (s *Store) UpsertObserved(ctx context.Context, date time.Time, f domain.ObservedFields) error {
	_, err := s.db.ExecContext(ctx, upsertObserved,
		domain.FormatDate(date), f.FogObserved, f.CastleVisible, f.Note)
	if err != nil {
		return fmt.Errorf("upsert observed %s: %w", domain.FormatDate(date), err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM history ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Replace writes whole records in one transaction.
func (s *Store) Replace(ctx context.Context, records []domain.HistoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, upsertRecord)
	if err != nil {
		return fmt.Errorf("prepare replace: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			domain.FormatDate(r.Date),
			r.Temp, r.Humidity, r.Wind, r.Cloud, r.Rain,
			r.FogProbability, r.CastleProbability, r.EventProbability,
			r.FogScore, r.CastleScore, r.DewPoint, r.DewSpread,
			string(r.Event), r.FogObserved, r.CastleVisible, r.Note,
			formatTime(r.UpdatedAt),
		); err != nil {
			return fmt.Errorf("replace %s: %w", domain.FormatDate(r.Date), err)
		}
	}
	return tx.Commit()
}

// Delete removes the given dates in one statement.
func (s *Store) Delete(ctx context.Context, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	args := make([]any, len(dates))
	for i, d := range dates {
		args[i] = domain.FormatDate(d)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(dates)), ",")
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE date IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (domain.HistoryRecord, bool, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryRecord{}, false, nil
	}
	if err != nil {
		return domain.HistoryRecord{}, false, err
	}
	return rec, true, nil
}

func scanRecord(row scanner) (domain.HistoryRecord, error) {
	var (
		rec       domain.HistoryRecord
		date      string
		event     string
		updatedAt *string
	)
	err := row.Scan(&date,
		&rec.Temp, &rec.Humidity, &rec.Wind, &rec.Cloud, &rec.Rain,
		&rec.FogProbability, &rec.CastleProbability, &rec.EventProbability,
		&rec.FogScore, &rec.CastleScore, &rec.DewPoint, &rec.DewSpread,
		&event, &rec.FogObserved, &rec.CastleVisible, &rec.Note, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan history row: %w", err)
	}

	rec.Date, err = domain.ParseDate(date)
	if err != nil {
		return rec, &domain.MalformedRecordError{Source: "history", Record: date, Field: "date", Err: err}
	}
	rec.Event = domain.EventLabel(event)
	if updatedAt != nil && *updatedAt != "" {
		rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, *updatedAt)
		if err != nil {
			return rec, &domain.MalformedRecordError{Source: "history", Record: date, Field: "updated_at", Err: err}
		}
	}
	return rec, nil
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
