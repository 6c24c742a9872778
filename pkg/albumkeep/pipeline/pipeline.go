// Package pipeline assembles a complete in-process event pipeline: one
// topic with filtered subscriptions, the queue-backed workers, the
// dead-letter escalation path and the change-feed confirmation worker.
// It is used by the memory deployment mode and by end-to-end tests; the
// AWS deployment wires the same workers onto SQS/SNS/DynamoDB directly.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/dedup"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/repo/memory"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/worker"
)

// Queue names of the in-process pipeline.
const (
	QueueIngest     = "img-ingest-queue"
	QueueDeadLetter = "img-ingest-dlq"
	QueueDeletion   = "img-deletion-queue"
	QueueUpdate     = "img-update-queue"
)

// Config assembles a Pipeline. Sender and Recipient are required; Store
// and Feed default to a fresh in-memory store.
type Config struct {
	Sender    albumkeep.NotificationSender
	Recipient string

	Store albumkeep.MetadataStore
	Feed  albumkeep.ChangeFeed

	// Prober, when set, enriches ingested records with object info.
	Prober albumkeep.ObjectProber

	// Retry bounds redelivery on the ingest queue. Zero value means one
	// retry before dead-lettering.
	Retry pubsub.RetryPolicy

	// Dedup, when set, lets consumers skip already-processed messages.
	Dedup dedup.Store

	Log zerolog.Logger
}

// Pipeline is a fully wired in-process instance of the event routing and
// metadata synchronization pipeline.
type Pipeline struct {
	topic        *pubsub.Topic
	store        albumkeep.MetadataStore
	consumers    []*pubsub.Consumer
	confirmation *worker.Confirmation
}

// New wires the topic, queues, workers and confirmation path.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("%w: notification sender", albumkeep.ErrMissingConfig)
	}
	if cfg.Recipient == "" {
		return nil, fmt.Errorf("%w: notification recipient", albumkeep.ErrMissingConfig)
	}
	if cfg.Store == nil {
		store := memory.NewStore(memory.WithLogger(cfg.Log))
		cfg.Store = store
		cfg.Feed = store.Feed()
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("%w: change feed", albumkeep.ErrMissingConfig)
	}
	if cfg.Retry.MaxReceiveCount <= 0 {
		cfg.Retry.MaxReceiveCount = 2
	}

	dlq := pubsub.NewQueue(QueueDeadLetter)
	ingestQ := pubsub.NewQueue(QueueIngest,
		pubsub.WithRetryPolicy(cfg.Retry),
		pubsub.WithDeadLetter(dlq),
	)
	deletionQ := pubsub.NewQueue(QueueDeletion)
	updateQ := pubsub.NewQueue(QueueUpdate)

	topic := pubsub.NewTopic("image-events", cfg.Log)
	topic.Subscribe(ingestQ, pubsub.FilterPolicy{
		albumkeep.AttrEventName: {albumkeep.EventNameCreated},
	})
	topic.Subscribe(deletionQ, pubsub.FilterPolicy{
		albumkeep.AttrEventName: {albumkeep.EventNameRemoved},
	})
	topic.Subscribe(updateQ, pubsub.FilterPolicy{
		albumkeep.AttrMetadataType: albumkeep.AllowedMetadataTypes(),
	})

	var ingestOpts []worker.IngestOption
	if cfg.Prober != nil {
		ingestOpts = append(ingestOpts, worker.WithProber(cfg.Prober))
	}

	var consumerOpts []pubsub.ConsumerOption
	if cfg.Dedup != nil {
		consumerOpts = append(consumerOpts, pubsub.WithDedup(cfg.Dedup))
	}

	p := &Pipeline{
		topic: topic,
		store: cfg.Store,
		consumers: []*pubsub.Consumer{
			pubsub.NewConsumer("ingest", ingestQ,
				worker.NewIngest(cfg.Store, cfg.Log, ingestOpts...), cfg.Log, consumerOpts...),
			pubsub.NewConsumer("deletion", deletionQ,
				worker.NewDeletion(cfg.Store, cfg.Log), cfg.Log, consumerOpts...),
			pubsub.NewConsumer("attribute_update", updateQ,
				worker.NewAttributeUpdate(cfg.Store, cfg.Log), cfg.Log, consumerOpts...),
			pubsub.NewConsumer("rejection", dlq,
				worker.NewRejection(cfg.Sender, cfg.Recipient, cfg.Log), cfg.Log),
		},
		confirmation: worker.NewConfirmation(cfg.Feed, cfg.Sender, cfg.Recipient, cfg.Log),
	}
	return p, nil
}

// Run starts every consumer and the confirmation worker and blocks until
// the context is done and they have all stopped.
func (p *Pipeline) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, c := range p.consumers {
		wg.Add(1)
		go func(c *pubsub.Consumer) {
			defer wg.Done()
			_ = c.Run(ctx)
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.confirmation.Run(ctx)
	}()
	wg.Wait()
	return nil
}

// PublishMutation publishes an object-store mutation event with its
// derived event_name routing attribute.
func (p *Pipeline) PublishMutation(ctx context.Context, event albumkeep.MutationEvent) error {
	eventName, err := eventNameFor(event.Kind)
	if err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.topic.Publish(ctx, body, map[string]string{
		albumkeep.AttrEventName: eventName,
	})
}

// PublishAttributeUpdate publishes an attribute-update event routed by its
// metadata_type attribute.
func (p *Pipeline) PublishAttributeUpdate(ctx context.Context, event albumkeep.AttributeUpdateEvent, metadataType string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.topic.Publish(ctx, body, map[string]string{
		albumkeep.AttrMetadataType: metadataType,
	})
}

// Store returns the pipeline's metadata store.
func (p *Pipeline) Store() albumkeep.MetadataStore { return p.store }

// Topic returns the pipeline's event router.
func (p *Pipeline) Topic() *pubsub.Topic { return p.topic }

// Consumers returns the running consumers, for stats reporting.
func (p *Pipeline) Consumers() []*pubsub.Consumer { return p.consumers }

func eventNameFor(kind string) (string, error) {
	switch kind {
	case albumkeep.MutationCreated:
		return albumkeep.EventNameCreated, nil
	case albumkeep.MutationRemoved:
		return albumkeep.EventNameRemoved, nil
	default:
		return "", fmt.Errorf("unknown mutation kind %q", kind)
	}
}
