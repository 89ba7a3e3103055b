// Command validate performs offline integrity checks on the artifacts the
// service reads and writes: the model directory, a history CSV export, the
// forecast window and the forecast predictions. Each phase is reported as
// PASS or FAIL with a numbered list of problems.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -model-dir models \
//	  -history history.csv \
//	  -window data/forecast_window.json \
//	  -predictions data/forecast_predictions.json
//
// Every flag is optional; phases whose input is not given are skipped.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/adapter/csvhistory"
	"github.com/couchcryptid/skycastle-service/internal/adapter/filestore"
	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/model"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	modelDir := flag.String("model-dir", "", "model directory (models.toml and artifacts)")
	historyCSV := flag.String("history", "", "history CSV as written by 'skycastle history export'")
	windowJSON := flag.String("window", "", "forecast_window.json")
	predictionsJSON := flag.String("predictions", "", "forecast_predictions.json")
	flag.Parse()

	if *modelDir == "" && *historyCSV == "" && *windowJSON == "" && *predictionsJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*modelDir, *historyCSV, *windowJSON, *predictionsJSON); code != 0 {
		os.Exit(code)
	}
}

func run(modelDir, historyPath, windowPath, predictionsPath string) int {
	fmt.Println("=== Skycastle Artifact Validation ===")
	fmt.Println()

	var phases []*phase
	if modelDir != "" {
		phases = append(phases, validateModels(modelDir))
	}
	if historyPath != "" {
		rows, header, err := loadCSV(historyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load history CSV: %v\n", err)
			return 1
		}
		fmt.Printf("History rows: %d\n", len(rows))
		phases = append(phases, validateHistory(header, rows), validateHistoryScores(rows))
	}
	var window []domain.Reading
	if windowPath != "" {
		p := &phase{name: "Forecast window"}
		w, err := filestore.ReadWindowFile(windowPath)
		if err != nil {
			p.errorf("%v", err)
		} else {
			window = w
			checkWindow(p, w)
		}
		phases = append(phases, p)
	}
	if predictionsPath != "" {
		phases = append(phases, validatePredictions(predictionsPath, window))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Models ──

func validateModels(dir string) *phase {
	p := &phase{name: "Model set"}

	m, err := model.LoadManifest(dir)
	if err != nil {
		p.errorf("manifest: %v", err)
		return p
	}
	fmt.Printf("Model set: %s\n", m.Version)

	classifiers := make([]domain.Classifier, 0, 2)
	for _, e := range []struct {
		name string
		path string
	}{{"fog", m.Fog.Path}, {"castle", m.Castle.Path}} {
		a, err := model.LoadArtifact(resolve(dir, e.path))
		if err != nil {
			p.errorf("%s: %v", e.name, err)
			continue
		}
		if err := a.CheckFeatureOrder(); err != nil {
			p.errorf("%s: %v", e.name, err)
		}
		c, err := a.Classifier()
		if err != nil {
			p.errorf("%s: %v", e.name, err)
			continue
		}
		classifiers = append(classifiers, c)
	}

	cal := domain.NoCalibrator()
	if m.Calibrator != nil {
		a, err := model.LoadArtifact(resolve(dir, m.Calibrator.Path))
		switch {
		case err != nil:
			p.errorf("calibrator: %v", err)
		default:
			c, err := a.Classifier()
			if err != nil {
				p.errorf("calibrator: %v", err)
				break
			}
			if cal, err = domain.NewCalibrator(c, a.FeatureNames); err != nil {
				p.errorf("calibrator: %v", err)
			}
		}
	}

	if len(classifiers) == 2 {
		checkModelOutputs(p, classifiers[0], classifiers[1], cal)
	}
	return p
}

// checkModelOutputs scores a complete and a lag-less reading and checks
// every output is a probability.
func checkModelOutputs(p *phase, fog, castle domain.Classifier, cal domain.Calibrator) {
	r := domain.Reading{Date: time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC), Temp: 9.5, Humidity: 95, Wind: 1, Cloud: 50}
	lag := domain.Lag{Temp: domain.Float(12), Humidity: domain.Float(85), Wind: domain.Float(2), Cloud: domain.Float(40), Rain: domain.Float(0)}

	engine := domain.NewProbabilityEngine(fog, castle, domain.MissingNative)
	for _, v := range []domain.FeatureVector{domain.BuildFeatures(r, &lag), domain.BuildFeatures(r, nil)} {
		pair, err := engine.Predict(v)
		if err != nil {
			p.errorf("predict (missing %v): %v", v.Missing(), err)
			continue
		}
		event, source := cal.EventProbability(pair)
		if !isProbability(event) {
			p.errorf("event probability %v outside [0, 1]", event)
		}
		if cal.Present() && source != domain.SourceCalibrator {
			p.errorf("calibrator present but event probability came from %s", source)
		}
	}
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// ── History ──

// csvRow is a parsed CSV row with field values keyed by header name.
type csvRow struct {
	lineNum int
	fields  map[string]string
}

func loadCSV(path string) ([]csvRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("no header in %s", path)
	}

	header := all[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	rows := make([]csvRow, 0, len(all)-1)
	for i, row := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(row) {
				fields[h] = strings.TrimSpace(row[j])
			}
		}
		rows = append(rows, csvRow{lineNum: i + 2, fields: fields})
	}
	return rows, header, nil
}

var probabilityColumns = []string{"fog_probability", "castle_probability", "castle_event_probability"}

func validateHistory(header []string, rows []csvRow) *phase {
	p := &phase{name: "History table integrity"}

	if !slices.Equal(header, csvhistory.Columns) {
		p.errorf("header %v, want %v", header, csvhistory.Columns)
	}

	var prev time.Time
	for _, row := range rows {
		d, err := domain.ParseDate(row.fields["date"])
		if err != nil {
			p.errorf("line %d: %v", row.lineNum, err)
			continue
		}
		if !prev.IsZero() && !d.After(prev) {
			p.errorf("line %d: date %s not after %s", row.lineNum, domain.FormatDate(d), domain.FormatDate(prev))
		}
		prev = d

		for _, col := range probabilityColumns {
			if v, ok := optFloat(row.fields[col]); ok && !isProbability(v) {
				p.errorf("line %d: %s=%v outside [0, 1]", row.lineNum, col, v)
			}
		}
		if h, ok := optFloat(row.fields["humidity"]); ok && !(h > 0 && h <= 100) {
			p.errorf("line %d: humidity=%v outside (0, 100]", row.lineNum, h)
		}
		if e := row.fields["event"]; e != "" && !domain.EventLabel(e).Valid() {
			p.errorf("line %d: unknown event %q", row.lineNum, e)
		}
		for _, col := range []string{"fog_observed", "castle_visible"} {
			switch row.fields[col] {
			case "0", "1", "":
			default:
				p.errorf("line %d: %s=%q is not 0 or 1", row.lineNum, col, row.fields[col])
			}
		}
	}
	return p
}

// validateHistoryScores recomputes the heuristic scores from the stored
// weather. Stored weather is rounded to 2 decimals, so small drift is allowed.
func validateHistoryScores(rows []csvRow) *phase {
	p := &phase{name: "History heuristic scores"}
	checked := 0
	for _, row := range rows {
		r, ok := readingFromRow(row)
		if !ok {
			continue
		}
		want, err := domain.ScoreReading(r)
		if err != nil {
			p.errorf("line %d: %v", row.lineNum, err)
			continue
		}
		checked++
		compareScore(p, row, "dew_point", want.DewPoint, 0.02)
		compareScore(p, row, "dew_spread", want.DewSpread, 0.02)
		compareScore(p, row, "fog_score", want.FogScore, 0.3)
		compareScore(p, row, "castle_score", want.CastleScore, 0.3)
	}
	fmt.Printf("Rows with complete weather: %d\n", checked)
	return p
}

func readingFromRow(row csvRow) (domain.Reading, bool) {
	var vals [5]float64
	for i, col := range []string{"temp", "humidity", "wind", "cloud", "rain"} {
		v, ok := optFloat(row.fields[col])
		if !ok {
			return domain.Reading{}, false
		}
		vals[i] = v
	}
	return domain.Reading{Temp: vals[0], Humidity: vals[1], Wind: vals[2], Cloud: vals[3], Rain: vals[4]}, true
}

func compareScore(p *phase, row csvRow, col string, want, tol float64) {
	got, ok := optFloat(row.fields[col])
	if !ok {
		p.errorf("line %d: %s missing next to complete weather", row.lineNum, col)
		return
	}
	if math.Abs(got-want) > tol {
		p.errorf("line %d: %s=%v, recomputed %v", row.lineNum, col, got, want)
	}
}

// ── Forecast window ──

func checkWindow(p *phase, readings []domain.Reading) {
	days, err := domain.NormalizeWindow(readings)
	if err != nil {
		p.errorf("%v", err)
		return
	}
	if len(days) != len(readings) {
		p.errorf("%d entries for %d distinct dates", len(readings), len(days))
	}
	for i, r := range days {
		if i > 0 && !r.Date.Equal(days[i-1].Date.AddDate(0, 0, 1)) {
			p.errorf("gap between %s and %s", domain.FormatDate(days[i-1].Date), domain.FormatDate(r.Date))
		}
		if _, err := domain.DewPoint(r.Temp, r.Humidity); err != nil {
			p.errorf("%s: %v", domain.FormatDate(r.Date), err)
		}
		if r.Cloud < 0 || r.Cloud > 100 {
			p.errorf("%s: cloud=%v outside [0, 100]", domain.FormatDate(r.Date), r.Cloud)
		}
		if r.Wind < 0 || r.Rain < 0 {
			p.errorf("%s: negative wind or rain", domain.FormatDate(r.Date))
		}
	}
	fmt.Printf("Window days: %d\n", len(days))
}

// ── Forecast predictions ──

func validatePredictions(path string, window []domain.Reading) *phase {
	p := &phase{name: "Forecast predictions"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	var fp domain.ForecastPredictions
	if err := json.Unmarshal(data, &fp); err != nil {
		p.errorf("decode: %v", err)
		return p
	}
	if fp.GeneratedAt.IsZero() {
		p.errorf("generated_at missing")
	}

	seen := make(map[string]bool, len(fp.Predictions))
	prev := ""
	for i, wp := range fp.Predictions {
		if _, err := domain.ParseDate(wp.Date); err != nil {
			p.errorf("prediction %d: %v", i, err)
		}
		if seen[wp.Date] {
			p.errorf("prediction %d: duplicate date %s", i, wp.Date)
		}
		if prev != "" && wp.Date <= prev {
			p.errorf("prediction %d: %s out of order", i, wp.Date)
		}
		seen[wp.Date], prev = true, wp.Date

		for name, v := range map[string]float64{
			"fog_probability":          wp.FogProbability,
			"castle_probability":       wp.CastleProbability,
			"castle_event_probability": wp.EventProbability,
		} {
			if !isProbability(v) {
				p.errorf("%s: %s=%v outside [0, 1]", wp.Date, name, v)
			}
			if !floatEq(v, domain.Round(v, 3)) {
				p.errorf("%s: %s=%v has more than 3 decimals", wp.Date, name, v)
			}
		}
		if !wp.Event.Valid() {
			p.errorf("%s: unknown event %q", wp.Date, wp.Event)
		}
	}

	if len(window) > 0 {
		days, err := domain.NormalizeWindow(window)
		if err == nil && len(days) != len(fp.Predictions) {
			p.errorf("%d predictions for a %d-day window", len(fp.Predictions), len(days))
		}
		for _, r := range days {
			if !seen[domain.FormatDate(r.Date)] {
				p.errorf("window day %s has no prediction", domain.FormatDate(r.Date))
			}
		}
	}
	fmt.Printf("Predictions: %d\n", len(fp.Predictions))
	return p
}

// ── Helpers ──

func optFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func isProbability(v float64) bool {
	return v >= 0 && v <= 1
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
