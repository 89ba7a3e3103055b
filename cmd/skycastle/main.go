// Command skycastle runs the sea-of-clouds prediction service.
//
// Usage:
//
//	skycastle run [-date 2024-11-02]
//	skycastle window [-days 16] [-from-file data/forecast_window.json]
//	skycastle observe -date 2024-11-02 -fog -castle [-note "..."]
//	skycastle serve
//	skycastle history export|import|delete [-file history.csv]
//
// Settings come from the environment (see internal/config).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"
)

const usage = `usage: skycastle <command> [flags]

commands:
  run       predict one date (default tomorrow) and record it in history
  window    fetch and predict the forecast window
  observe   record a manual observation for one date
  serve     serve the HTTP API and consume observations from Kafka
  history   export, import or delete history rows as CSV
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cmd func(context.Context, *app, []string) error
	switch os.Args[1] {
	case "run":
		cmd = runDaily
	case "window":
		cmd = runWindow
	case "observe":
		cmd = runObserve
	case "serve":
		cmd = runServe
	case "history":
		cmd = runHistory
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	a, err := newApp(ctx)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	err = cmd(ctx, a, os.Args[2:])
	a.close()
	if err != nil {
		a.logger.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}
