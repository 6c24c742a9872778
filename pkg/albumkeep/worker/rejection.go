package worker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/notify"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// Rejection consumes messages from the dead-letter path and sends the
// fixed unsupported-type rejection email. It does not inspect message
// content: anything on the dead-letter queue is a rejected ingest event.
// Send failures are logged and swallowed; there is no further retry path
// once a message has dead-lettered.
type Rejection struct {
	sender    albumkeep.NotificationSender
	recipient string
	log       zerolog.Logger
}

// NewRejection creates the rejection worker.
func NewRejection(sender albumkeep.NotificationSender, recipient string, log zerolog.Logger) *Rejection {
	return &Rejection{
		sender:    sender,
		recipient: recipient,
		log:       log.With().Str("worker", "rejection").Logger(),
	}
}

// Handle sends one rejection notification.
func (w *Rejection) Handle(ctx context.Context, msg *pubsub.Message) error {
	err := w.sender.Send(ctx, w.recipient, notify.RejectionSubject, notify.RejectionBody)
	if err != nil {
		nerr := &albumkeep.NotifyError{Recipient: w.recipient, Err: err}
		w.log.Error().Err(nerr).Str("message_id", msg.ID).Msg("Error sending rejection email")
		return nil
	}
	w.log.Info().Str("message_id", msg.ID).Msg("Rejection email sent")
	return nil
}
