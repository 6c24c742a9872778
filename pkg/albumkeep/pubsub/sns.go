package pubsub

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client the publisher uses.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes messages to an SNS topic. Routing attributes map
// to SNS message attributes, so subscription filter policies apply the same
// allow-list semantics the in-memory Topic evaluates locally.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher creates a publisher for the given topic ARN.
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// Publish sends body with the given routing attributes.
func (p *SNSPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for name, value := range attrs {
			input.MessageAttributes[name] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}
	_, err := p.client.Publish(ctx, input)
	return err
}
