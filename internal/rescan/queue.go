package rescan

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"ingest-backend/internal/shared/telemetry"
)

// Enqueuer sends rescan messages to a queue backend.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
}

// SQSQueue sends rescan messages to AWS SQS.
type SQSQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSQueue constructs an SQS-backed queue for the given URL.
func NewSQSQueue(ctx context.Context, queueURL, region string) (*SQSQueue, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("rescan queue URL is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SQSQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}, nil
}

// Enqueue delivers a message to the configured SQS queue.
func (q *SQSQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode rescan message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Enqueuer = (*SQSQueue)(nil)

// LogQueue is the dev fallback: it records the enqueue and relies on the
// worker's periodic sweep of pending_rescan rows to settle the version.
type LogQueue struct{}

// Enqueue logs the message and drops it.
func (LogQueue) Enqueue(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("rescan.enqueue.noop", map[string]any{
		"document_id": msg.DocumentID,
		"version":     msg.Version,
		"request_id":  msg.RequestID,
	})
	return nil
}

var _ Enqueuer = LogQueue{}
