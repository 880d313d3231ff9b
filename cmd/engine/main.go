// Binary engine runs one strategy instance against the futures venue. It
// takes the strategy directory as its only argument and owns every file
// inside it: config.yaml, .env, strategy.log, status.log, trades.csv.
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quantbot-go/internal/bitmart"
	"quantbot-go/internal/config"
	"quantbot-go/internal/engine"
	"quantbot-go/internal/journal"
	"quantbot-go/internal/metrics"
	"quantbot-go/internal/util"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: engine <strategy-dir>")
		os.Exit(2)
	}
	dir := os.Args[1]

	// Credentials live next to the strategy config, never inside it.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, logFile, err := util.NewFileLogger(cfg.App.LogLevel, filepath.Join(dir, "strategy.log"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	creds := bitmart.Credentials{
		Key:    os.Getenv("BITMART_API_KEY"),
		Secret: os.Getenv("BITMART_API_SECRET"),
		Memo:   os.Getenv("BITMART_API_MEMO"),
	}
	tradingEnabled := creds.Configured()
	if !tradingEnabled {
		log.Warn().Msg("no API credentials configured, running in read-only mode")
	}
	client := bitmart.NewClient(cfg.Exchange.BaseURL, creds, time.Duration(cfg.Exchange.TimeoutSecs)*time.Second, log)

	status := journal.NewStatusReporter(filepath.Join(dir, journal.StatusFileName))
	ledger := journal.NewTradeLedger(filepath.Join(dir, journal.LedgerFileName))

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(cfg.Strategy, client, status, ledger, log, tradingEnabled)
	if err := eng.PrepareTradingEnvironment(ctx); err != nil {
		log.Fatal().Err(err).Msg("prepare trading environment")
	}
	eng.Run(ctx)
}
