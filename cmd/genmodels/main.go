// Command genmodels writes the deterministic demo model set used for local
// runs and end-to-end tests: fog and castle classifiers, an event calibrator
// and a models.toml manifest. It then runs the loaded set over a few sample
// mornings so the output can be eyeballed.
//
// Usage:
//
//	go run ./cmd/genmodels -out models
//	go run ./cmd/genmodels -out models -compress zst -no-calibrator
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/model"
)

type sample struct {
	name    string
	reading domain.Reading
}

var samples = []sample{
	{"foggy calm", domain.Reading{Temp: 9.5, Humidity: 96, Wind: 0.8, Cloud: 30, Rain: 0}},
	{"humid breezy", domain.Reading{Temp: 11, Humidity: 90, Wind: 4.5, Cloud: 70, Rain: 0.2}},
	{"dry clear", domain.Reading{Temp: 14, Humidity: 60, Wind: 2, Cloud: 10, Rain: 0}},
	{"rainy", domain.Reading{Temp: 12, Humidity: 98, Wind: 3, Cloud: 100, Rain: 4}},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "models", "output model directory")
	compress := flag.String("compress", "", "artifact compression: gz, zst or empty for plain JSON")
	noCalibrator := flag.Bool("no-calibrator", false, "omit the event calibrator")
	version := flag.String("version", "demo-"+time.Now().UTC().Format("20060102"), "model set version")
	flag.Parse()

	ext := ".json"
	switch *compress {
	case "":
	case "gz", "zst":
		ext += "." + *compress
	default:
		flag.Usage()
		return fmt.Errorf("unknown -compress %q", *compress)
	}

	fog, castle, calibrator := model.DemoArtifacts()
	m := model.Manifest{
		Version: *version,
		Fog:     model.Entry{Path: "skycastle_fog" + ext},
		Castle:  model.Entry{Path: "skycastle_castle" + ext},
	}
	if err := model.WriteArtifact(filepath.Join(*out, m.Fog.Path), fog); err != nil {
		return fmt.Errorf("writing fog model: %w", err)
	}
	if err := model.WriteArtifact(filepath.Join(*out, m.Castle.Path), castle); err != nil {
		return fmt.Errorf("writing castle model: %w", err)
	}
	if !*noCalibrator {
		m.Calibrator = &model.Entry{Path: "skycastle_event_calibrator" + ext}
		if err := model.WriteArtifact(filepath.Join(*out, m.Calibrator.Path), calibrator); err != nil {
			return fmt.Errorf("writing calibrator: %w", err)
		}
	}
	if err := model.WriteManifest(*out, m); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	log.Printf("wrote model set %s to %s", m.Version, *out)

	return printSamples(*out)
}

// printSamples loads the written set back and reports its predictions.
func printSamples(dir string) error {
	set, err := model.NewLoader(dir, slog.New(slog.NewTextHandler(os.Stderr, nil))).Load(context.Background())
	if err != nil {
		return fmt.Errorf("reloading model set: %w", err)
	}
	predictor := domain.Predictor{
		Engine:     domain.NewProbabilityEngine(set.Fog, set.Castle, domain.MissingNative),
		Calibrator: set.Calibrator,
		Classifier: domain.NewEventClassifier(domain.PolicyCalibrated),
	}

	fmt.Printf("\n%-14s %6s %6s %6s  %-8s %s\n", "sample", "fog", "castle", "event", "label", "source")
	for _, s := range samples {
		v := domain.BuildFeatures(s.reading, nil)
		p, err := predictor.Predict(s.reading, v)
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		fmt.Printf("%-14s %6.3f %6.3f %6.3f  %-8s %s\n", s.name,
			domain.Round(p.Probabilities.Fog, 3),
			domain.Round(p.Probabilities.Castle, 3),
			domain.Round(p.Event, 3),
			p.Label, p.Source)
	}
	return nil
}
