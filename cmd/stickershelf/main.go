package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"stickershelf/internal/api"
	"stickershelf/internal/auth"
	"stickershelf/internal/bot"
	"stickershelf/internal/config"
	"stickershelf/internal/domain"
	"stickershelf/internal/gallery"
	"stickershelf/internal/ingest"
	"stickershelf/internal/scraper"
	"stickershelf/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	setLevel(log, cfg.LogLevel)

	config.WatchConfig(func(next config.Config, err error) {
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid configuration change")
			return
		}
		setLevel(log, next.LogLevel)
	})

	path := storage.CollectionPath(cfg.DeploymentID, cfg.Collection)
	log.WithFields(logrus.Fields{
		"badgerdb_path": cfg.BadgerDBPath,
		"collection":    path,
	}).Info("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	store, err := storage.NewBadgerStore(cfg.BadgerDBPath, log)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()
	go store.RunGC(ctx, cfg.GCInterval)

	identity := auth.NewAnonymousProvider(log)
	if _, err := identity.SignIn(ctx); err != nil {
		log.WithError(err).Error("Anonymous sign-in failed; writes will be retried with a fresh sign-in")
	}

	items := gallery.New(store, gallery.Options{
		Path:   path,
		Signer: identity,
		OnUpdate: func(snapshot []domain.CatalogItem) {
			log.WithField("item_count", len(snapshot)).Info("Gallery updated")
		},
		OnError: func(err error) {
			log.WithError(err).Error("Gallery subscription error")
		},
	}, log)

	unsubscribe, err := items.Subscribe(ctx)
	if err != nil {
		log.Fatalf("Failed to subscribe to gallery: %v", err)
	}
	defer unsubscribe()

	norm := ingest.NewNormalizer(ingest.Options{
		MaxFileBytes:    cfg.MaxUploadBytes,
		MaxWidth:        cfg.MaxImageWidth,
		Quality:         cfg.JPEGQuality,
		MaxEncodedBytes: cfg.MaxEncodedBytes,
		MaxPixels:       ingest.DefaultOptions().MaxPixels,
	}, log)

	// --- Operator Bot ---
	if cfg.TelegramBotToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN is not set; operator bot disabled")
	} else {
		botHandler, err := bot.NewHandler(cfg, items, scraper.NewRodScraper(log), norm, log)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram bot handler: %v", err)
		}
		go botHandler.Start(ctx)
	}

	// --- Viewer API ---
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(items, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	log.Info("stickershelf is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	// --- Graceful Shutdown ---
	log.Info("Shutting down stickershelf...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	// The deferred unsubscribe and store.Close() run now.
	log.Info("stickershelf shut down gracefully.")
}

func setLevel(log *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.WithField("log_level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}
