package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"perpcarry/api"
	"perpcarry/api/handlers"
	"perpcarry/config"
	"perpcarry/internal/analytics"
	"perpcarry/internal/exchange"
	"perpcarry/internal/scheduler"
)

func main() {
	// ── 1. Logger setup
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config
	cfg := config.Load()
	log.Info().Msg("config loaded")

	// ── 4. Binance adapter
	binance := exchange.NewBinanceAdapter(cfg.BinanceBaseURL)
	log.Info().Str("exchange", binance.Name()).Msg("exchange adapter initialized")

	// ── 5. Analyzer + Scheduler
	analyzer := analytics.NewAnalyzer(binance, cfg.NotionalUSD, cfg.PeriodsPerYear, cfg.FundingHistoryLimit)
	sched := scheduler.NewScheduler(analyzer, binance, cfg.Symbols, cfg.PollInterval)

	sched.Start(ctx)
	defer sched.Stop()

	// ── 6. Live mark price stream feeding the cache between polls
	stream := exchange.NewMarkPriceStream(cfg.BinanceStreamURL, cfg.Symbols)
	go stream.Run(ctx)
	go func() {
		for update := range stream.Updates() {
			sched.Apply(update)
		}
	}()

	// ── 7. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Perpcarry",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	// ── 8. Routes
	carryHandler := handlers.NewCarryHandler(sched, analyzer, cfg.NotionalUSD, cfg.FundingHistoryLimit)
	api.SetupRoutes(app, carryHandler)

	// ── 9. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 10. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
