// Package postgres implements domain.HistoryStore on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	date                     DATE PRIMARY KEY,
	temp                     DOUBLE PRECISION,
	humidity                 DOUBLE PRECISION,
	wind                     DOUBLE PRECISION,
	cloud                    DOUBLE PRECISION,
	rain                     DOUBLE PRECISION,
	fog_probability          DOUBLE PRECISION,
	castle_probability       DOUBLE PRECISION,
	castle_event_probability DOUBLE PRECISION,
	fog_score                DOUBLE PRECISION,
	castle_score             DOUBLE PRECISION,
	dew_point                DOUBLE PRECISION,
	dew_spread               DOUBLE PRECISION,
	event                    TEXT NOT NULL DEFAULT '',
	fog_observed             BOOLEAN NOT NULL DEFAULT FALSE,
	castle_visible           BOOLEAN NOT NULL DEFAULT FALSE,
	note                     TEXT NOT NULL DEFAULT '',
	updated_at               TIMESTAMPTZ
)`

const columns = `date, temp, humidity, wind, cloud, rain,
	fog_probability, castle_probability, castle_event_probability,
	fog_score, castle_score, dew_point, dew_spread, event,
	fog_observed, castle_visible, note, updated_at`

const predictedSet = `
	temp = EXCLUDED.temp,
	humidity = EXCLUDED.humidity,
	wind = EXCLUDED.wind,
	cloud = EXCLUDED.cloud,
	rain = EXCLUDED.rain,
	fog_probability = EXCLUDED.fog_probability,
	castle_probability = EXCLUDED.castle_probability,
	castle_event_probability = EXCLUDED.castle_event_probability,
	fog_score = EXCLUDED.fog_score,
	castle_score = EXCLUDED.castle_score,
	dew_point = EXCLUDED.dew_point,
	dew_spread = EXCLUDED.dew_spread,
	event = EXCLUDED.event,
	updated_at = EXCLUDED.updated_at`

const observedSet = `
	fog_observed = EXCLUDED.fog_observed,
	castle_visible = EXCLUDED.castle_visible,
	note = EXCLUDED.note`

// Store is a PostgreSQL-backed history table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to dsn and creates the history table if needed.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}
	logger.Info("postgres history store ready")
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Get(ctx context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	return scanOne(s.pool.QueryRow(ctx, `SELECT `+columns+` FROM history WHERE date = $1`, domain.Day(date)))
}

func (s *Store) LatestBefore(ctx context.Context, date time.Time) (domain.HistoryRecord, bool, error) {
	return scanOne(s.pool.QueryRow(ctx, `SELECT `+columns+` FROM history
		WHERE date < $1
		  AND (temp IS NOT NULL OR humidity IS NOT NULL OR wind IS NOT NULL OR cloud IS NOT NULL OR rain IS NOT NULL)
		ORDER BY date DESC
		LIMIT 1`, domain.Day(date)))
}

func (s *Store) UpsertPredicted(ctx context.Context, date time.Time, f domain.PredictedFields) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO history (date, temp, humidity, wind, cloud, rain,
			fog_probability, castle_probability, castle_event_probability,
			fog_score, castle_score, dew_point, dew_spread, event, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (date) DO UPDATE SET`+predictedSet,
		domain.Day(date),
		f.Temp, f.Humidity, f.Wind, f.Cloud, f.Rain,
		f.FogProbability, f.CastleProbability, f.EventProbability,
		f.FogScore, f.CastleScore, f.DewPoint, f.DewSpread,
		string(f.Event), nullTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert predicted %s: %w", domain.FormatDate(date), err)
	}
	return nil
}

func (s *Store) UpsertObserved(ctx context.Context, date time.Time, f domain.ObservedFields) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO history (date, fog_observed, castle_visible, note)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET`+observedSet,
		domain.Day(date), f.FogObserved, f.CastleVisible, f.Note,
	)
	if err != nil {
		return fmt.Errorf("upsert observed %s: %w", domain.FormatDate(date), err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+columns+` FROM history ORDER BY date`)
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

// Replace writes whole records in one batch inside a transaction.
func (s *Store) Replace(ctx context.Context, records []domain.HistoryRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO history (`+columns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (date) DO UPDATE SET`+predictedSet+`,`+observedSet,
			domain.Day(r.Date),
			r.Temp, r.Humidity, r.Wind, r.Cloud, r.Rain,
			r.FogProbability, r.CastleProbability, r.EventProbability,
			r.FogScore, r.CastleScore, r.DewPoint, r.DewSpread,
			string(r.Event), r.FogObserved, r.CastleVisible, r.Note,
			nullTime(r.UpdatedAt),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, r := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("replace %s: %w", domain.FormatDate(r.Date), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("replace batch: %w", err)
	}
	return tx.Commit(ctx)
}

// Delete removes the given dates.
func (s *Store) Delete(ctx context.Context, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = domain.Day(d)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM history WHERE date = ANY($1)`, days); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

func scanOne(row pgx.Row) (domain.HistoryRecord, bool, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HistoryRecord{}, false, nil
	}
	if err != nil {
		return domain.HistoryRecord{}, false, err
	}
	return rec, true, nil
}

func scanRecord(row pgx.Row) (domain.HistoryRecord, error) {
	var (
		rec       domain.HistoryRecord
		event     string
		updatedAt *time.Time
	)
	err := row.Scan(&rec.Date,
		&rec.Temp, &rec.Humidity, &rec.Wind, &rec.Cloud, &rec.Rain,
		&rec.FogProbability, &rec.CastleProbability, &rec.EventProbability,
		&rec.FogScore, &rec.CastleScore, &rec.DewPoint, &rec.DewSpread,
		&event, &rec.FogObserved, &rec.CastleVisible, &rec.Note, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan history row: %w", err)
	}
	rec.Date = domain.Day(rec.Date)
	rec.Event = domain.EventLabel(event)
	if updatedAt != nil {
		rec.UpdatedAt = updatedAt.UTC()
	}
	return rec, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
