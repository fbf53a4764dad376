package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phd59fr/mailbridge/internal/bot"
	"github.com/phd59fr/mailbridge/internal/config"
	"github.com/phd59fr/mailbridge/internal/dispatch"
	imapclient "github.com/phd59fr/mailbridge/internal/imap"
	"github.com/phd59fr/mailbridge/internal/logging"
	"github.com/phd59fr/mailbridge/internal/mailparse"
	"github.com/phd59fr/mailbridge/internal/store"
	"github.com/phd59fr/mailbridge/internal/watcher"
)

const (
	cleanupInterval  = 24 * time.Hour
	cleanupRetention = 30 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		logging.Log.Fatalf("Error reading configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logging.Log.SetLevel(level)
	}

	logging.Log.Infof("Starting mailbridge with %d accounts, poll interval %s", len(cfg.Accounts), cfg.CheckInterval)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logging.Log.Fatalf("Error opening database: %v", err)
	}
	defer func() {
		_ = st.Close()
	}()

	supervisor := watcher.NewSupervisor(cfg, func() imapclient.Client {
		return imapclient.NewStandardClient()
	})

	arbiter := dispatch.NewArbiter(st)

	b, err := bot.New(cfg.BotToken, st, arbiter, supervisor.Status)
	if err != nil {
		logging.Log.Fatalf("Error starting Telegram bot: %v", err)
	}

	parser := mailparse.NewParser(cfg.MaxPreviewLength, cfg.SpamKeywords)
	dispatcher := dispatch.NewDispatcher(parser, st, b, supervisor.Output())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	supervisor.Start(ctx)
	go dispatcher.Run(ctx)
	go runCleanup(ctx, st)

	// Blocks until shutdown is requested.
	b.Run(ctx)

	supervisor.Stop()
	logging.Log.Info("Shutdown complete")
}

// runCleanup periodically prunes old handled deliveries and orphaned messages.
func runCleanup(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := st.CleanupHandled(ctx, cleanupRetention)
			if err != nil {
				logging.Log.Errorf("Cleanup error: %v", err)
				continue
			}
			if deleted > 0 {
				logging.Log.Infof("Cleaned up %d old handled notifications", deleted)
			}
		}
	}
}
