package pubsub

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the queue adapter uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSQueue adapts an SQS queue to the Source interface. Redelivery counting
// and dead-letter escalation are the queue's own redrive policy; Nack only
// makes the message visible again immediately.
//
// Subscriptions feeding these queues are expected to use raw message
// delivery, so the body is the published event itself rather than an SNS
// envelope.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	waitTime int32
}

// NewSQSQueue wraps an SQS queue given its URL. Receives use long polling.
func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		waitTime: 10,
	}
}

// Name returns the queue URL.
func (q *SQSQueue) Name() string { return q.queueURL }

// Receive long-polls the queue for up to max messages.
func (q *SQSQueue) Receive(ctx context.Context, max int) ([]*Message, error) {
	if max <= 0 || max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       q.waitTime,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, err
	}

	batch := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := &Message{
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(aws.ToString(m.Body)),
		}
		if m.MessageId != nil {
			msg.ID = *m.MessageId
		}
		if rc, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(rc); err == nil {
				msg.ReceiveCount = n
			}
		}
		if len(m.MessageAttributes) > 0 {
			msg.Attributes = make(map[string]string, len(m.MessageAttributes))
			for name, attr := range m.MessageAttributes {
				msg.Attributes[name] = aws.ToString(attr.StringValue)
			}
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// Ack deletes the message from the queue.
func (q *SQSQueue) Ack(ctx context.Context, msg *Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	return err
}

// Nack makes the message visible again immediately so SQS redelivers it.
func (q *SQSQueue) Nack(ctx context.Context, msg *Message) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: 0,
	})
	return err
}
