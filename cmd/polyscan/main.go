package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rewired-gh/polyscan/internal/api"
	"github.com/rewired-gh/polyscan/internal/config"
	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/polymarket"
	"github.com/rewired-gh/polyscan/internal/scanner"
	"github.com/rewired-gh/polyscan/internal/storage"
	"github.com/rewired-gh/polyscan/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Storage.Backend,
		DataDir:     cfg.Storage.DataDir,
		DBPath:      cfg.Storage.DBPath,
		RedisURL:    cfg.Storage.RedisURL,
		RedisPrefix: cfg.Storage.RedisPrefix,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	if mirror != nil {
		defer func() {
			if err := mirror.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		logger.Info("State mirror: %s", cfg.Storage.Backend)
	} else {
		logger.Debug("State mirror disabled")
	}

	polyClient := polymarket.NewClient(
		cfg.Polymarket.GammaAPIURL,
		cfg.Polymarket.Timeout,
		polymarket.ClientConfig{
			PageSize:            cfg.Polymarket.PageSize,
			MaxRetries:          cfg.Polymarket.MaxRetries,
			RetryDelay:          cfg.Polymarket.RetryDelay,
			MaxIdleConns:        cfg.Polymarket.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Polymarket.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Polymarket.IdleConnTimeout,
			UserAgent:           cfg.Polymarket.UserAgent,
		},
	)

	filter := polymarket.DefaultFilter()
	filter.TagSlug = cfg.Polymarket.TagSlug
	filter.Order = cfg.Polymarket.Order
	filter.Ascending = cfg.Polymarket.Ascending

	var enrichers []polymarket.Enricher
	volumeFilter := polymarket.VolumeFilter{
		MinVolume24hr: cfg.Polymarket.Volume24hrMin,
		MinLiquidity:  cfg.Polymarket.LiquidityMin,
		MatchAny:      cfg.Polymarket.VolumeFilterOR,
	}
	if volumeFilter.Enabled() {
		enrichers = append(enrichers, volumeFilter)
		logger.Info("Volume filter enabled (24h volume >= %.0f, liquidity >= %.0f, any: %v)",
			volumeFilter.MinVolume24hr, volumeFilter.MinLiquidity, volumeFilter.MatchAny)
	}

	// The hub and telegram client read status through this closure; the
	// engine is assigned before anything can call it.
	var engine *scanner.Engine
	status := func() models.Status { return engine.Status() }

	var observers []scanner.Observer

	var hub *api.Hub
	if cfg.HTTP.Enabled && cfg.HTTP.Websocket {
		hub = api.NewHub(status)
		observers = append(observers, hub)
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(telegram.Config{
			BotToken:       cfg.Telegram.BotToken,
			ChatID:         cfg.Telegram.ChatID,
			MaxRetries:     cfg.Telegram.MaxRetries,
			RetryDelayBase: cfg.Telegram.RetryDelayBase,
			MinLevel:       cfg.NotificationLevel(),
			MaxMoves:       cfg.Telegram.MaxMoves,
		})
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		observers = append(observers, telegramClient)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	opts := []scanner.Option{
		scanner.WithEnrichers(enrichers...),
		scanner.WithObservers(observers...),
	}
	if mirror != nil {
		opts = append(opts, scanner.WithMirror(mirror))
	}
	engine = scanner.New(polyClient, scanner.Config{
		Interval:      cfg.Scanner.Interval,
		ErrorCooldown: cfg.Scanner.ErrorCooldown,
		MaxMoves:      cfg.Scanner.MaxMoves,
		Filter:        filter,
	}, opts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	var wg sync.WaitGroup

	if telegramClient != nil {
		telegramClient.Bind(status, engine.ForceRescan)
		telegramClient.ListenForCommands(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			telegramClient.Run(ctx)
		}()
	}

	if cfg.HTTP.Enabled {
		var describer api.Describer
		if mirror != nil {
			describer = mirror
		}
		server := api.NewServer(engine, describer, hub, api.Config{
			Addr:           cfg.HTTP.Addr,
			HistoryWindow:  cfg.HTTP.HistoryWindow,
			ReadTimeout:    cfg.HTTP.ReadTimeout,
			WriteTimeout:   cfg.HTTP.WriteTimeout,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx); err != nil {
				logger.Error("HTTP server failed: %v", err)
				cancel()
			}
		}()
	}

	logger.Info("Starting scan service (interval: %v, max_moves: %d, storage: %s)",
		cfg.Scanner.Interval,
		cfg.Scanner.MaxMoves,
		cfg.Storage.Backend,
	)

	if err := engine.Run(ctx); err != nil {
		logger.Error("Scan loop failed: %v", err)
	}
	cancel()
	wg.Wait()
	logger.Info("Service stopped")
}
