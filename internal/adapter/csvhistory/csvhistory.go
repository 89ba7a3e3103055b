// Package csvhistory exports and imports the history table as CSV, in the
// column order operators know from the spreadsheet workflow. Imports are
// validated in full before anything is written.
package csvhistory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Columns is the CSV header order.
var Columns = []string{
	"date", "temp", "humidity", "wind", "cloud", "rain",
	"fog_probability", "castle_probability", "castle_event_probability",
	"fog_score", "castle_score", "dew_point", "dew_spread",
	"event", "fog_observed", "castle_visible", "note", "updated_at",
}

const source = "history csv"

// Export writes every stored record to w and returns the row count.
func Export(ctx context.Context, w io.Writer, store domain.HistoryStore) (int, error) {
	records, err := store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list history: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, err
	}
	for _, r := range records {
		if err := cw.Write(toRow(r)); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(records), cw.Error()
}

// Import parses every row of r, then replaces the matching records in one
// transaction. Columns absent from the file are stored as NULL or zero.
func Import(ctx context.Context, r io.Reader, editor domain.HistoryEditor) (int, error) {
	records, err := Parse(r)
	if err != nil {
		return 0, err
	}
	if err := editor.Replace(ctx, records); err != nil {
		return 0, fmt.Errorf("replace history: %w", err)
	}
	return len(records), nil
}

// Delete removes the dates listed in the date column of r.
func Delete(ctx context.Context, r io.Reader, editor domain.HistoryEditor) (int, error) {
	records, err := Parse(r)
	if err != nil {
		return 0, err
	}
	dates := make([]time.Time, len(records))
	for i, rec := range records {
		dates[i] = rec.Date
	}
	if err := editor.Delete(ctx, dates); err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	return len(dates), nil
}

// Parse reads and validates a history CSV. The header must name a date
// column; other known columns may appear in any order. Unknown columns and
// duplicate dates are rejected.
func Parse(r io.Reader) ([]domain.HistoryRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	all, err := cr.ReadAll()
	if err != nil {
		return nil, &domain.MalformedRecordError{Source: source, Err: err}
	}
	if len(all) == 0 {
		return nil, &domain.MissingInputError{What: "history csv header"}
	}

	header := make([]string, len(all[0]))
	known := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		known[c] = true
	}
	hasDate := false
	for i, h := range all[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if !known[h] {
			return nil, &domain.MalformedRecordError{Source: source, Record: "header", Field: h, Err: errors.New("unknown column")}
		}
		hasDate = hasDate || h == "date"
		header[i] = h
	}
	if !hasDate {
		return nil, &domain.MalformedRecordError{Source: source, Record: "header", Field: "date", Err: errors.New("missing column")}
	}

	seen := make(map[time.Time]int)
	out := make([]domain.HistoryRecord, 0, len(all)-1)
	for i, row := range all[1:] {
		line := i + 2
		if blank(row) {
			continue
		}
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		rec, err := parseRow(fields)
		if err != nil {
			var m *domain.MalformedRecordError
			if errors.As(err, &m) {
				m.Source = source
				m.Record = "line " + strconv.Itoa(line)
			}
			return nil, err
		}
		if prev, dup := seen[rec.Date]; dup {
			return nil, &domain.MalformedRecordError{
				Source: source, Record: "line " + strconv.Itoa(line), Field: "date",
				Err: fmt.Errorf("duplicate of line %d", prev),
			}
		}
		seen[rec.Date] = line
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(f map[string]string) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord

	d, err := domain.ParseDate(f["date"])
	if err != nil {
		return rec, &domain.MalformedRecordError{Field: "date", Err: err}
	}
	rec.Date = d

	floats := []struct {
		name        string
		dst         **float64
		probability bool
	}{
		{"temp", &rec.Temp, false},
		{"humidity", &rec.Humidity, false},
		{"wind", &rec.Wind, false},
		{"cloud", &rec.Cloud, false},
		{"rain", &rec.Rain, false},
		{"fog_probability", &rec.FogProbability, true},
		{"castle_probability", &rec.CastleProbability, true},
		{"castle_event_probability", &rec.EventProbability, true},
		{"fog_score", &rec.FogScore, false},
		{"castle_score", &rec.CastleScore, false},
		{"dew_point", &rec.DewPoint, false},
		{"dew_spread", &rec.DewSpread, false},
	}
	for _, c := range floats {
		v, err := parseFloat(f[c.name])
		if err != nil {
			return rec, &domain.MalformedRecordError{Field: c.name, Err: err}
		}
		if c.probability && v != nil && (*v < 0 || *v > 1) {
			return rec, &domain.MalformedRecordError{Field: c.name, Err: domain.ErrInvalidProbability}
		}
		*c.dst = v
	}

	if ev := domain.EventLabel(f["event"]); ev != "" {
		if !ev.Valid() {
			return rec, &domain.MalformedRecordError{Field: "event", Err: fmt.Errorf("unknown label %q", ev)}
		}
		rec.Event = ev
	}

	if rec.FogObserved, err = parseBool(f["fog_observed"]); err != nil {
		return rec, &domain.MalformedRecordError{Field: "fog_observed", Err: err}
	}
	if rec.CastleVisible, err = parseBool(f["castle_visible"]); err != nil {
		return rec, &domain.MalformedRecordError{Field: "castle_visible", Err: err}
	}
	rec.Note = f["note"]

	if s := f["updated_at"]; s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return rec, &domain.MalformedRecordError{Field: "updated_at", Err: err}
		}
		rec.UpdatedAt = t
	}
	return rec, nil
}

func toRow(r domain.HistoryRecord) []string {
	updated := ""
	if !r.UpdatedAt.IsZero() {
		updated = r.UpdatedAt.Format(time.RFC3339Nano)
	}
	return []string{
		domain.FormatDate(r.Date),
		formatFloat(r.Temp), formatFloat(r.Humidity), formatFloat(r.Wind), formatFloat(r.Cloud), formatFloat(r.Rain),
		formatFloat(r.FogProbability), formatFloat(r.CastleProbability), formatFloat(r.EventProbability),
		formatFloat(r.FogScore), formatFloat(r.CastleScore), formatFloat(r.DewPoint), formatFloat(r.DewSpread),
		string(r.Event), formatBool(r.FogObserved), formatBool(r.CastleVisible), r.Note, updated,
	}
}

func parseFloat(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") || s == "<NA>" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a finite number: %q", s)
	}
	return &v, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// parseBool accepts the 0/1 integers of the spreadsheet and true/false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "<na>":
		return false, nil
	case "1", "true":
		return true, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
