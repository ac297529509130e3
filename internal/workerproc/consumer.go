package workerproc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"signup-backend/internal/shared/metrics"
	"signup-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency     = 4
	defaultShutdownTimeout = 30 * time.Second
	receiveWaitSeconds     = 20
	receiveBatch           = 10
)

// SQSAPI is the subset of the SQS client the consumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Processor runs the review preparation for one application.
type Processor interface {
	ProcessReview(ctx context.Context, applicationID string) error
}

// Consumer polls the review queue and hands each job to a Processor.
// Messages are deleted after success or when they can never succeed; failed
// jobs are left for SQS to redeliver.
type Consumer struct {
	Client            SQSAPI
	QueueURL          string
	Processor         Processor
	Concurrency       int
	VisibilitySeconds int
	ShutdownTimeout   time.Duration
}

// Run polls until ctx is canceled, then waits up to ShutdownTimeout for
// in-flight jobs.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Client == nil || c.Processor == nil || strings.TrimSpace(c.QueueURL) == "" {
		return errors.New("consumer not configured")
	}
	concurrency := c.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	shutdownTimeout := c.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	telemetry.Info("worker.started", map[string]any{
		"queue":       c.QueueURL,
		"concurrency": concurrency,
		"visibility":  c.VisibilitySeconds,
	})

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		input := &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.QueueURL),
			MaxNumberOfMessages: receiveBatch,
			WaitTimeSeconds:     receiveWaitSeconds,
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		}
		if c.VisibilitySeconds > 0 {
			input.VisibilityTimeout = int32(c.VisibilitySeconds)
		}
		resp, err := c.Client.ReceiveMessage(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncReviewJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				c.HandleMessage(ctx, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
	return nil
}

// HandleMessage processes a single delivery.
func (c *Consumer) HandleMessage(ctx context.Context, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)
	decoded, meta, err := ParseMessage(body)
	if err != nil {
		requestID := ""
		event := "worker.review.decode_failed"
		fields := baseFields(msg, "", "")
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		var missing ErrMissingApplicationID
		var empty ErrEmptyBody
		switch {
		case errors.As(err, &empty):
			event = "worker.review.empty_body"
		case errors.As(err, &missing):
			event = "worker.review.missing_id"
			requestID = missing.RequestID
			if requestID != "" {
				fields["request_id"] = requestID
			}
		default:
			fields["error"] = err.Error()
		}
		telemetry.Error(event, fields)
		if c.deleteMessage(ctx, msg, "", requestID) {
			metrics.IncReviewJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.review.received", baseFields(msg, decoded.ApplicationID, decoded.RequestID))

	if err := c.process(ctx, decoded.ApplicationID, decoded.RequestID); err != nil {
		fields := baseFields(msg, decoded.ApplicationID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.review.failed", fields)
		metrics.IncReviewJobsFailed()
		return
	}

	if c.deleteMessage(ctx, msg, decoded.ApplicationID, decoded.RequestID) {
		telemetry.Info("worker.review.completed", baseFields(msg, decoded.ApplicationID, decoded.RequestID))
		metrics.IncReviewJobsCompleted()
	}
}

func (c *Consumer) process(ctx context.Context, applicationID, requestID string) error {
	if c.Processor == nil {
		return errors.New("review processor not configured")
	}
	if err := c.Processor.ProcessReview(ctx, applicationID); err != nil {
		return ErrProcess{ApplicationID: applicationID, RequestID: requestID, Err: err}
	}
	return nil
}

func (c *Consumer) deleteMessage(ctx context.Context, msg sqstypes.Message, applicationID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, applicationID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.review.delete_failed", fields)
		return false
	}
	if _, err := c.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.QueueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, applicationID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.review.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, applicationID, requestID string) map[string]any {
	fields := map[string]any{
		"application_id": applicationID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}
