package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"signup-backend/internal/bootstrap"
	"signup-backend/internal/shared/config"
	"signup-backend/internal/shared/telemetry"
	"signup-backend/internal/workerproc"
)

const defaultRegion = "us-east-1"

func main() {
	defer telemetry.Sync()
	cfg := config.Load()

	queueURL := strings.TrimSpace(cfg.SQSQueueURL)
	if queueURL == "" {
		log.Fatal("SIGNUP_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	region := cfg.AWSRegion
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.ModeWorker)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	consumer := &workerproc.Consumer{
		Client:            sqs.NewFromConfig(awsCfg),
		QueueURL:          queueURL,
		Processor:         app.ApplicationsService,
		Concurrency:       cfg.Worker.Concurrency,
		VisibilitySeconds: cfg.Worker.VisibilitySeconds,
		ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
	}
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
