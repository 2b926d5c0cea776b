package main

// The rescan worker settles versions stored while the scanner was degraded.
// It consumes queue messages for promptness and runs a periodic sweep as the
// safety net for messages that were never enqueued or were lost.

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"ingest-backend/internal/artifacts"
	"ingest-backend/internal/bootstrap"
	"ingest-backend/internal/rescan"
	"ingest-backend/internal/shared/config"
	"ingest-backend/internal/shared/telemetry"
)

const (
	defaultVisibilitySeconds  = 300
	defaultWorkerConcurrency  = 4
	defaultSweepIntervalSec   = 300
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	if app.Scanner == nil {
		log.Fatal("SCANNER_URL is required for the rescan worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("RESCAN_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("RESCAN_WORKER_CONCURRENCY", defaultWorkerConcurrency)
	sweepInterval := time.Duration(envInt("RESCAN_SWEEP_INTERVAL_SECONDS", defaultSweepIntervalSec)) * time.Second
	shutdownTimeout := time.Duration(envInt("RESCAN_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	var wg sync.WaitGroup

	// Sweep loop runs regardless of queue configuration.
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepLoop(ctx, app.Worker, sweepInterval)
	}()

	queueURL := strings.TrimSpace(cfg.RescanQueueURL)
	if queueURL == "" {
		log.Printf("worker started without a queue; sweeping every %s", sweepInterval)
		<-ctx.Done()
		wg.Wait()
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	sem := make(chan struct{}, maxInt(1, concurrency))

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds sweep=%s",
		queueURL, concurrency, visibilitySeconds, sweepInterval)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, app, sqsClient, queueURL, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight rescans", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight rescans")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func sweepLoop(ctx context.Context, worker *rescan.Worker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := worker.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				telemetry.Error("worker.sweep.failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				telemetry.Info("worker.sweep.settled", map[string]any{"count": n})
			}
		}
	}
}

func handleMessage(ctx context.Context, app *bootstrap.App, client sqsAPI, queueURL string, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	fields := map[string]any{"sqs_message_id": aws.ToString(msg.MessageId)}

	decoded, err := rescan.DecodeMessage([]byte(body))
	if err != nil {
		// A malformed message will never become decodable; drop it.
		fields["error"] = err.Error()
		telemetry.Error("worker.rescan.decode_failed", fields)
		deleteMessage(ctx, client, queueURL, msg, fields)
		return
	}
	fields["document_id"] = decoded.DocumentID
	fields["version"] = decoded.Version
	fields["request_id"] = decoded.RequestID

	if err := app.Worker.Process(ctx, decoded); err != nil {
		if errors.Is(err, artifacts.ErrNotFound) || errors.Is(err, artifacts.ErrGone) {
			// The version no longer exists; nothing left to settle.
			telemetry.Info("worker.rescan.version_gone", fields)
			deleteMessage(ctx, client, queueURL, msg, fields)
			return
		}
		// Leave the message; the visibility timeout will redeliver it.
		fields["error"] = err.Error()
		telemetry.Error("worker.rescan.failed", fields)
		return
	}

	deleteMessage(ctx, client, queueURL, msg, fields)
	telemetry.Info("worker.rescan.completed", fields)
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, fields map[string]any) {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.rescan.delete_failed", fields)
		return
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.rescan.delete_failed", fields)
	}
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
