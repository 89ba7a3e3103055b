package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/couchcryptid/skycastle-service/internal/adapter/csvhistory"
	"github.com/couchcryptid/skycastle-service/internal/adapter/filestore"
	"github.com/couchcryptid/skycastle-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/skycastle-service/internal/adapter/kafka"
	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/pipeline"
)

func runDaily(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	dateFlag := fs.String("date", "", "target date YYYY-MM-DD (default tomorrow in the site time zone)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner := a.dailyRunner()
	date := runner.DefaultDate()
	if *dateFlag != "" {
		d, err := domain.ParseDate(*dateFlag)
		if err != nil {
			return err
		}
		date = d
	}

	if a.cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(a.cfg, a.logger)
		defer func() {
			if err := writer.Close(); err != nil {
				a.logger.Error("kafka writer close error", "error", err)
			}
		}()
		runner.WithPublisher(writer)
	}

	out, err := runner.Run(ctx, date)
	if err != nil {
		return err
	}
	fmt.Printf("%s  fog=%.3f castle=%.3f event=%.3f  %s\n",
		domain.FormatDate(date),
		domain.Round(out.Prediction.Probabilities.Fog, 3),
		domain.Round(out.Prediction.Probabilities.Castle, 3),
		domain.Round(out.Prediction.Event, 3),
		out.Prediction.Label)
	return nil
}

func runWindow(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("window", flag.ContinueOnError)
	days := fs.Int("days", domain.MaxWindowDays, "number of days starting today (1-16)")
	fromFile := fs.String("from-file", "", "predict an existing forecast window file instead of fetching")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runner := a.windowRunner()
	var (
		fp  domain.ForecastPredictions
		err error
	)
	if *fromFile != "" {
		readings, rerr := filestore.ReadWindowFile(*fromFile)
		if rerr != nil {
			return rerr
		}
		fp, err = runner.Predict(ctx, readings)
	} else {
		fp, err = runner.Run(ctx, *days)
	}
	if err != nil {
		return err
	}

	for _, p := range fp.Predictions {
		fmt.Printf("%s  fog=%.3f castle=%.3f event=%.3f  %s\n",
			p.Date, p.FogProbability, p.CastleProbability, p.EventProbability, p.Event)
	}
	fmt.Printf("wrote %s\n", a.files.Path(filestore.PredictionsFile))
	return nil
}

func runObserve(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("observe", flag.ContinueOnError)
	dateFlag := fs.String("date", "", "observation date YYYY-MM-DD (required)")
	fog := fs.Bool("fog", false, "fog was observed")
	castle := fs.Bool("castle", false, "the castle was visible above the fog")
	note := fs.String("note", "", "free-text note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dateFlag == "" {
		fs.Usage()
		return errors.New("missing required flag: -date")
	}
	date, err := domain.ParseDate(*dateFlag)
	if err != nil {
		return err
	}

	return a.recorder().Record(ctx, date, domain.ObservedFields{
		FogObserved:   *fog,
		CastleVisible: *castle,
		Note:          *note,
	})
}

func runHistory(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: skycastle history export|import|delete [-file path]")
	}
	action := args[0]
	fs := flag.NewFlagSet("history "+action, flag.ContinueOnError)
	file := fs.String("file", "-", "CSV file, - for stdin/stdout")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch action {
	case "export":
		w, closeFn, err := openOutput(*file)
		if err != nil {
			return err
		}
		n, err := csvhistory.Export(ctx, w, a.store)
		if cerr := closeFn(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		a.logger.Info("history exported", "rows", n, "file", *file)
	case "import", "delete":
		r, closeFn, err := openInput(*file)
		if err != nil {
			return err
		}
		defer closeFn() //nolint:errcheck // read-only
		apply := csvhistory.Import
		if action == "delete" {
			apply = csvhistory.Delete
		}
		n, err := apply(ctx, r, a.store)
		if err != nil {
			return err
		}
		a.logger.Info("history updated", "action", action, "rows", n, "file", *file)
	default:
		return fmt.Errorf("unknown history action %q", action)
	}
	return nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openInput(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// runServe serves the HTTP API and, when brokers are configured, consumes
// observations until the context is cancelled.
func runServe(ctx context.Context, a *app, _ []string) error {
	recorder := a.recorder()
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.store, a.store, recorder, a.files, a.logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()

	var reader *kafkaadapter.Reader
	if a.cfg.KafkaEnabled() {
		reader = kafkaadapter.NewReader(a.cfg, a.logger)
		p := pipeline.NewObservationPipeline(reader, pipeline.NewTransformer(a.validate), recorder, a.logger, a.metrics, a.cfg.BatchSize)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				a.logger.Error("observation pipeline error", "error", err)
			}
		}()
	} else {
		a.logger.Info("kafka disabled, not consuming observations")
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if reader != nil {
		if err := reader.Close(); err != nil {
			a.logger.Error("kafka reader close error", "error", err)
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
