// mongokit-doctor connects to a MongoDB deployment with the configured
// lifecycle settings, reports the collections it finds, and keeps the
// heartbeat running until interrupted. Useful for verifying connection,
// reconnect, and event wiring against a live deployment.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mongokit/internal/config"
	"mongokit/internal/connection"
	"mongokit/internal/events"
	"mongokit/internal/logging"

	"github.com/nats-io/nats.go"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	connectTimeout := flag.Duration("timeout", 30*time.Second, "Initial connect timeout")
	watch := flag.Bool("watch", false, "Stay connected and report lifecycle events until interrupted")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() {
		if err := logging.Shutdown(); err != nil {
			log.Printf("Failed to shut down logging: %v", err)
		}
	}()

	emitter := events.NewEmitter(slog.Default())
	emitter.Subscribe(func(ev events.Event) {
		ctx := context.Background()
		if ev.Err != nil {
			slog.Log(ctx, logging.LevelImportant, "Lifecycle event", "event", ev.Name, "error", ev.Err)
			return
		}
		slog.Log(ctx, logging.LevelImportant, "Lifecycle event", "event", ev.Name)
	})

	var publisher *events.Publisher
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL)
		if err != nil {
			log.Fatalf("Failed to connect to NATS at %s: %v", cfg.Events.NATSURL, err)
		}
		defer nc.Close()

		publisher = events.NewPublisher(nc, cfg.Events.SubjectPrefix, emitter, slog.Default())
		defer publisher.Close()
	}

	mgr := connection.NewManager(cfg.Connection, emitter, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	db, err := mgr.Connect(ctx)
	cancel()
	if err != nil {
		slog.Error("Connect failed", "uri", cfg.Connection.URI, "error", err)
		os.Exit(1)
	}

	slog.Info("Connected", "database", db.Name(), "state", mgr.State().String())
	for _, name := range mgr.Collections() {
		slog.Info("Collection", "name", name)
	}

	if *watch {
		slog.Info("Watching lifecycle events, press Ctrl+C to stop")
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := mgr.Disconnect(shutdownCtx); err != nil {
		slog.Error("Disconnect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Disconnected cleanly")
}
