// Command ledger-smoke appends one recognisable test row to the configured
// ledger backend to check credentials and connectivity.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/noah-isme/opaline-simulator/internal/config"
	"github.com/noah-isme/opaline-simulator/internal/ledger"
	"github.com/noah-isme/opaline-simulator/internal/obs"
)

func main() {
	var (
		email      = flag.String("email", "test@email.com", "email written in the test row")
		withHeader = flag.Bool("ensure-header", false, "insert the header row first when missing")
		logFormat  = flag.String("log-format", "console", "json or console")
	)
	flag.Parse()
	logger := obs.NewLoggerTo(os.Stderr, *logFormat, "info").With().Str("component", "ledger-smoke").Logger()

	cfg, err := config.LoadLedger()
	if err != nil {
		logger.Fatal().Err(err).Msg("load ledger configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := ledger.OpenStore(ctx, cfg.BackendConfig())
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("open ledger store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("close ledger store")
		}
	}()

	adapter := &ledger.Adapter{Store: store, Timeout: cfg.Timeout, Location: cfg.Location, Backend: cfg.Backend}
	if *withHeader {
		if _, err := adapter.EnsureHeaderRow(ctx, ledger.Columns); err != nil {
			logger.Fatal().Err(err).Msg("ensure header")
		}
	}

	row := ledger.Row{
		Date:    time.Now().In(cfg.Location),
		Name:    "Test",
		Surname: "Smoke",
		Email:   *email,
	}
	appendCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := store.AppendRow(appendCtx, row); err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("append test row")
	}
	logger.Info().Str("backend", cfg.Backend).Strs("cells", row.Cells()).Msg("test row appended")
}
