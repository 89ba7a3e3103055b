package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// windowEntry is one day of forecast_window.json.
type windowEntry struct {
	Date        string  `json:"date"`
	Temp        float64 `json:"temp"`
	Humidity    float64 `json:"humidity"`
	Wind        float64 `json:"wind"`
	Cloud       float64 `json:"cloud"`
	Rain        float64 `json:"rain"`
	WeatherCode *int    `json:"weathercode,omitempty"`
}

func newWindowEntry(r domain.Reading) windowEntry {
	return windowEntry{
		Date:        domain.FormatDate(r.Date),
		Temp:        r.Temp,
		Humidity:    r.Humidity,
		Wind:        r.Wind,
		Cloud:       r.Cloud,
		Rain:        r.Rain,
		WeatherCode: r.WeatherCode,
	}
}

// ReadWindowFile parses a forecast window document. Numbers may be JSON
// numbers or numeric strings; anything else is a MalformedRecordError naming
// the entry and field. Nothing is returned unless every entry parses.
func ReadWindowFile(path string) ([]domain.Reading, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.MissingInputError{What: path}
	}
	if err != nil {
		return nil, err
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &domain.MalformedRecordError{Source: path, Err: err}
	}

	out := make([]domain.Reading, 0, len(raw))
	for i, entry := range raw {
		r, err := parseWindowEntry(entry)
		if err != nil {
			var malformed *domain.MalformedRecordError
			if errors.As(err, &malformed) {
				malformed.Source = path
				malformed.Record = fmt.Sprintf("entry %d", i)
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseWindowEntry(entry map[string]json.RawMessage) (domain.Reading, error) {
	var r domain.Reading

	var date string
	if err := json.Unmarshal(entry["date"], &date); err != nil || date == "" {
		return r, &domain.MalformedRecordError{Field: "date", Err: errors.New("missing or not a string")}
	}
	d, err := domain.ParseDate(date)
	if err != nil {
		return r, &domain.MalformedRecordError{Field: "date", Err: err}
	}
	r.Date = d

	fields := []struct {
		name string
		dst  *float64
	}{
		{"temp", &r.Temp},
		{"humidity", &r.Humidity},
		{"wind", &r.Wind},
		{"cloud", &r.Cloud},
		{"rain", &r.Rain},
	}
	for _, f := range fields {
		v, err := number(entry[f.name])
		if err != nil {
			return r, &domain.MalformedRecordError{Field: f.name, Err: err}
		}
		*f.dst = v
	}

	if rawCode, ok := entry["weathercode"]; ok && string(rawCode) != "null" {
		v, err := number(rawCode)
		if err != nil {
			return r, &domain.MalformedRecordError{Field: "weathercode", Err: err}
		}
		code := int(v)
		r.WeatherCode = &code
	}
	return r, nil
}

// number accepts a JSON number or a string holding one.
func number(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing value")
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("not a number: %s", raw)
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %s", raw)
	}
	return v, nil
}
