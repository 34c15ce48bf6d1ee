// Package iot consumes gate camera detections published to SQS.
package iot

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"parking_garage/internal/config"
	"parking_garage/internal/logger"
	"parking_garage/internal/metrics"
)

// QueueClient is the part of the SQS client the consumer calls.
type QueueClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// DetectionHandler processes one message body. A nil error acknowledges it.
type DetectionHandler interface {
	HandleDetectionMessage(ctx context.Context, body string) error
}

type SQSConsumer struct {
	sqsClient  QueueClient
	queueURL   string
	handler    DetectionHandler
	metrics    *metrics.Metrics
	log        *logger.Logger
	maxMsgs    int32
	waitSecs   int32
	visibility int32
	deadline   time.Duration
	retryDelay time.Duration
}

func NewSQSConsumer(client QueueClient, cfg *config.Config, handler DetectionHandler, m *metrics.Metrics) *SQSConsumer {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &SQSConsumer{
		sqsClient:  client,
		queueURL:   cfg.SQSDetectionQueueURL,
		handler:    handler,
		metrics:    m,
		log:        logger.Named("sqs").With(zap.String("queue", cfg.SQSDetectionQueueURL)),
		maxMsgs:    cfg.SQSMaxMessages,
		waitSecs:   cfg.SQSWaitTimeSeconds,
		visibility: cfg.SQSVisibilityTimeout,
		deadline:   cfg.SQSProcessingDeadline,
		retryDelay: 5 * time.Second,
	}
}

// Start long-polls the queue until ctx is cancelled.
func (c *SQSConsumer) Start(ctx context.Context) {
	c.log.Info("listening for detections")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("context cancelled, stopping")
			return
		default:
		}
		if !c.Poll(ctx) {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				c.log.Info("context cancelled while waiting for retry")
				return
			}
		}
	}
}

// Poll receives and processes one batch. It returns false when the receive
// itself failed.
func (c *SQSConsumer) Poll(ctx context.Context) bool {
	result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.maxMsgs,
		WaitTimeSeconds:     c.waitSecs,
		VisibilityTimeout:   c.visibility,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("receive failed", zap.Error(err))
		}
		return false
	}
	if len(result.Messages) == 0 {
		return true
	}
	c.log.Debug("received messages", zap.Int("count", len(result.Messages)))
	for _, message := range result.Messages {
		c.process(ctx, message)
	}
	return true
}

func (c *SQSConsumer) process(ctx context.Context, message types.Message) {
	id := aws.ToString(message.MessageId)
	if message.Body == nil {
		c.log.Warn("dropping message with empty body", zap.String("message_id", id))
		c.metrics.QueueMessages.WithLabelValues("dropped").Inc()
		c.deleteMessage(ctx, message.ReceiptHandle)
		return
	}

	msgCtx := ctx
	if c.deadline > 0 {
		var cancel context.CancelFunc
		msgCtx, cancel = context.WithTimeout(ctx, c.deadline)
		defer cancel()
	}
	if err := c.handler.HandleDetectionMessage(msgCtx, *message.Body); err != nil {
		c.metrics.QueueMessages.WithLabelValues("failed").Inc()
		c.log.Error("processing failed, message will be redelivered after the visibility timeout",
			zap.String("message_id", id), zap.Error(err))
		return
	}
	c.metrics.QueueMessages.WithLabelValues("processed").Inc()
	c.deleteMessage(ctx, message.ReceiptHandle)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		c.log.Warn("receipt handle missing, cannot delete message")
		return
	}
	_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.log.Error("delete failed", zap.Error(err))
	}
}
