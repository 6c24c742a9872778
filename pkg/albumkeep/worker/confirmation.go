package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/notify"
)

// Confirmation observes the metadata store's change feed and sends a
// confirmation email for every record insertion. It is decoupled from the
// ingest worker so that "record persisted" and "user notified" are
// independent stages: a feed-read failure never rolls back the insert, and
// a send failure is logged and swallowed.
type Confirmation struct {
	feed      albumkeep.ChangeFeed
	sender    albumkeep.NotificationSender
	recipient string
	log       zerolog.Logger
}

// NewConfirmation creates the confirmation worker.
func NewConfirmation(feed albumkeep.ChangeFeed, sender albumkeep.NotificationSender, recipient string, log zerolog.Logger) *Confirmation {
	return &Confirmation{
		feed:      feed,
		sender:    sender,
		recipient: recipient,
		log:       log.With().Str("worker", "confirmation").Logger(),
	}
}

// Run reads feed entries until the context is done.
func (w *Confirmation) Run(ctx context.Context) error {
	w.log.Info().Msg("Confirmation worker started")
	for {
		entry, err := w.feed.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.log.Info().Msg("Confirmation worker stopping")
				return nil
			}
			w.log.Error().Err(err).Msg("Change feed read failed")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		w.handle(ctx, entry)
	}
}

func (w *Confirmation) handle(ctx context.Context, entry *albumkeep.ChangeEntry) {
	if entry.Kind != albumkeep.ChangeInsert || entry.Record == nil {
		return
	}
	fileName := entry.Record.FileName
	err := w.sender.Send(ctx, w.recipient, notify.ConfirmationSubject, notify.ConfirmationBody(fileName))
	if err != nil {
		nerr := &albumkeep.NotifyError{Recipient: w.recipient, Err: err}
		w.log.Error().Err(nerr).Str("key", fileName).Msg("Error sending confirmation email")
		return
	}
	w.log.Info().Str("key", fileName).Msg("Confirmation email sent")
}
