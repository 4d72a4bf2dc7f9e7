package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

// Queue carries memory jobs between Record and the workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received job.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// ChannelQueue is a Queue backed by a buffered channel.
type ChannelQueue struct {
	ch chan QueueMessage
}

// NewChannelQueue creates a ChannelQueue with the provided buffer capacity.
func NewChannelQueue(buffer int) *ChannelQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &ChannelQueue{ch: make(chan QueueMessage, buffer)}
}

// Send enqueues body or blocks until ctx is done.
func (q *ChannelQueue) Send(ctx context.Context, body string) error {
	msg := QueueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *ChannelQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		batch := []QueueMessage{msg}
		for len(batch) < maxMessages {
			select {
			case next := <-q.ch:
				batch = append(batch, next)
			default:
				return batch, nil
			}
		}
		return batch, nil
	}
}

// Delete is a no-op; channel messages are gone once received.
func (q *ChannelQueue) Delete(context.Context, string) error { return nil }

// Len reports the number of buffered jobs.
func (q *ChannelQueue) Len() int { return len(q.ch) }

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue is a Queue backed by AWS/LocalStack SQS.
type SQSQueue struct {
	client   sqsAPI
	queueURL string
}

// NewSQSQueue creates a queue wrapper around the provided SQS client.
func NewSQSQueue(client sqsAPI, queueURL string) (*SQSQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("memory: SQS client cannot be nil")
	}
	if queueURL == "" {
		return nil, fmt.Errorf("memory: SQS queue URL cannot be empty")
	}
	return &SQSQueue{client: client, queueURL: queueURL}, nil
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("memory: failed to send SQS message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("memory: failed to receive SQS messages: %w", err)
	}
	messages := make([]QueueMessage, 0, len(output.Messages))
	for _, msg := range output.Messages {
		messages = append(messages, QueueMessage{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("memory: failed to delete SQS message: %w", err)
	}
	return nil
}

var (
	_ Queue = (*ChannelQueue)(nil)
	_ Queue = (*SQSQueue)(nil)
)
