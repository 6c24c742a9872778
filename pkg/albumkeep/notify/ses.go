package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const charset = "UTF-8"

// SESAPI is the subset of the SES client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender sends email through SES from a fixed sender address. It is
// stateless; the sender address is process-wide configuration fixed at
// startup.
type SESSender struct {
	client SESAPI
	sender string
}

// NewSESSender creates a sender.
func NewSESSender(client SESAPI, sender string) *SESSender {
	return &SESSender{client: client, sender: sender}
}

// Send sends an HTML email to recipient.
func (s *SESSender) Send(ctx context.Context, recipient, subject, body string) error {
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String(charset),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Charset: aws.String(charset),
					Data:    aws.String(body),
				},
			},
		},
	})
	return err
}
