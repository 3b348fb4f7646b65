package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"

	"github.com/lafamilia/og-scanner/pkg/bootstrap"
	"github.com/lafamilia/og-scanner/pkg/config"
	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/processing"
)

func main() {
	configPath := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("open scan store: %v", err)
	}
	defer app.Close()

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		log.Fatalf("pubsub client: %v", err)
	}
	defer client.Close()

	var dlqPublisher processing.DLQPublisher
	if cfg.PubSub.DLQTopicID != "" {
		dlqPublisher = processing.NewPubSubDLQPublisher(client.Topic(cfg.PubSub.DLQTopicID))
	} else {
		dlqPublisher = &processing.NoopDLQPublisher{}
	}
	handler := processing.NewHandler(app.Ledger, dlqPublisher)

	sub := client.Subscription(cfg.PubSub.SubscriptionID)
	sub.ReceiveSettings.NumGoroutines = cfg.PubSub.WorkerCount
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.PubSub.MaxOutstanding

	logger.Log.Infow("processor started",
		"project", cfg.PubSub.ProjectID,
		"subscription", cfg.PubSub.SubscriptionID,
		"workers", cfg.PubSub.WorkerCount,
		"store", cfg.Storage.Kind,
	)

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if handler.HandleMessage(ctx, msg) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil {
		log.Fatalf("subscription receive ended: %v", err)
	}
}
