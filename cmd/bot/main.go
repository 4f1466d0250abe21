package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	sig "os/signal"
	"syscall"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/adapters/notify"
	"github.com/alejandrodnm/crowdbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/crowdbot/internal/adapters/simulated"
	"github.com/alejandrodnm/crowdbot/internal/adapters/storage"
	"github.com/alejandrodnm/crowdbot/internal/engine"
	"github.com/alejandrodnm/crowdbot/internal/executor"
	"github.com/alejandrodnm/crowdbot/internal/ledger"
	"github.com/alejandrodnm/crowdbot/internal/monitor"
	"github.com/alejandrodnm/crowdbot/internal/ports"
	"github.com/alejandrodnm/crowdbot/internal/risk"
	"github.com/alejandrodnm/crowdbot/internal/signal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one cycle and exit")
	dryRun := flag.Bool("dry-run", false, "simulate fills, never touch the venue")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *dryRun {
		cfg.Bot.DryRun = true
	}
	setupLogger(cfg.Log)

	slog.Info("crowdbot starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"series", cfg.Bot.SeriesSlug,
		"dry_run", cfg.Bot.DryRun,
		"once", *once,
		"max_bet_usd", cfg.Signal.MaxBetUSD,
	)

	creds := polymarket.Credentials{
		Address:    os.Getenv("POLY_ADDRESS"),
		APIKey:     os.Getenv("POLY_API_KEY"),
		Secret:     os.Getenv("POLY_SECRET"),
		Passphrase: os.Getenv("POLY_PASSPHRASE"),
	}
	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase, creds, cfg.Executor.VenueTimeout())

	if !cfg.Bot.DryRun && !creds.Configured() {
		slog.Error("live mode requires POLY_ADDRESS, POLY_API_KEY, POLY_SECRET and POLY_PASSPHRASE")
		os.Exit(1)
	}

	// En dry-run el venue simulado lee datos reales vía el client de
	// Polymarket pero ejecuta las órdenes en memoria.
	var venue ports.VenueClient = client
	if cfg.Bot.DryRun {
		venue = simulated.New(client, cfg.Risk.MaxExposureUSD)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	telegram, err := notify.NewTelegram(cfg.Telegram)
	if err != nil {
		slog.Error("failed to init telegram", "err", err)
		os.Exit(1)
	}
	console := notify.NewConsole()
	notifier := notify.NewMulti(console, telegram)

	ctx, cancel := sig.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	book := ledger.New(ports.RealClock{})
	open, err := store.OpenPositions(ctx)
	if err != nil {
		slog.Error("failed to rebuild ledger", "err", err)
		os.Exit(1)
	}
	book.Rebuild(open)
	if len(open) > 0 {
		slog.Info("ledger rebuilt from storage", "open_positions", len(open))
	}

	exec := executor.New(cfg.Executor, venue, store, book, notifier, nil, cfg.Bot.DryRun)
	mon := monitor.New(cfg.Monitor, cfg.Risk, notifier, nil)

	eng := engine.New(cfg.Bot, engine.Deps{
		Venue:      venue,
		Discoverer: polymarket.NewDiscoverer(client, cfg.Bot.SeriesSlug),
		Store:      store,
		Signals:    signal.New(cfg.Signal),
		Gate:       risk.New(cfg.Risk),
		Book:       book,
		Exec:       exec,
		Monitor:    mon,
		Notifier:   notifier,
		Clock:      ports.RealClock{},
	})

	if *once {
		eng.RunCycle(ctx)
		printSummary(console, store, book)
		slog.Info("single cycle complete")
		return
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	printSummary(console, store, book)
	slog.Info("crowdbot stopped cleanly")
}

// printSummary imprime las estadísticas de la última semana y las posiciones
// que quedan abiertas. Usa un contexto propio: el de la señal ya está cancelado
// cuando llegamos aquí.
func printSummary(console *notify.Console, store *storage.SQLiteStore, book *ledger.Ledger) {
	stats, err := store.Stats(context.Background(), 7)
	if err != nil {
		slog.Error("failed to load stats", "err", err)
		return
	}
	console.Summary(stats, book.OpenPositions())
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
