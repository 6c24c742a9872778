package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/albumkeep/albumkeep/internal/ops"
	"github.com/albumkeep/albumkeep/pkg/albumkeep"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/config"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/dedup"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/notify"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/objectstore"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pipeline"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/repo/dynamo"
	"github.com/albumkeep/albumkeep/pkg/albumkeep/worker"
)

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "albumkeep",
		Usage: "Image-event routing and metadata synchronization pipeline",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the pipeline workers and the ops server",
				Action: runAction,
			},
			{
				Name:  "publish",
				Usage: "Publish a test event to the SNS topic (aws mode)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Usage: "Mutation kind: Created or Removed"},
					&cli.StringFlag{Name: "bucket", Usage: "Source bucket name"},
					&cli.StringFlag{Name: "key", Usage: "Object key (URL-encoded)"},
					&cli.StringFlag{Name: "update-id", Usage: "Record ID for an attribute update"},
					&cli.StringFlag{Name: "update-value", Usage: "Attribute value for an attribute update"},
					&cli.StringFlag{Name: "metadata-type", Usage: "Attribute name (Caption, Date, Photographer)"},
				},
				Action: publishAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dedupStore dedup.Store
	if cfg.Dedup.RedisAddr != "" {
		dedupStore = dedup.NewRedis(cfg.Dedup.RedisAddr, cfg.Dedup.TTL)
		defer dedupStore.Close()
	}

	var consumers []*pubsub.Consumer
	var wg sync.WaitGroup

	switch cfg.Mode {
	case config.ModeMemory:
		p, err := pipeline.New(pipeline.Config{
			Sender:    logSender{},
			Recipient: cfg.Mail.To,
			Prober:    objectstore.NewMemory(),
			Retry: pubsub.RetryPolicy{
				MaxReceiveCount: cfg.Retry.MaxReceiveCount,
				Backoff:         cfg.Retry.Backoff,
			},
			Dedup: dedupStore,
			Log:   log.Logger,
		})
		if err != nil {
			return err
		}
		consumers = p.Consumers()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(ctx)
		}()

	case config.ModeAWS:
		consumers, err = runAWS(ctx, cfg, dedupStore, &wg)
		if err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: ops.NewServer(consumers).Handler(),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Ops server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	wg.Wait()
	return nil
}

// runAWS wires the workers onto SQS queues, the DynamoDB table and stream,
// and SES, matching the managed deployment of the pipeline.
func runAWS(ctx context.Context, cfg *config.Config, dedupStore dedup.Store, wg *sync.WaitGroup) ([]*pubsub.Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := dynamo.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.AWS.TableName)
	feed := dynamo.NewFeed(dynamodbstreams.NewFromConfig(awsCfg), cfg.AWS.StreamARN)
	sender := notify.NewSESSender(ses.NewFromConfig(awsCfg), cfg.Mail.From)
	prober := objectstore.NewS3Prober(s3.NewFromConfig(awsCfg))
	sqsClient := sqs.NewFromConfig(awsCfg)

	var consumerOpts []pubsub.ConsumerOption
	if dedupStore != nil {
		consumerOpts = append(consumerOpts, pubsub.WithDedup(dedupStore))
	}

	consumers := []*pubsub.Consumer{
		pubsub.NewConsumer("ingest",
			pubsub.NewSQSQueue(sqsClient, cfg.AWS.IngestQueueURL),
			worker.NewIngest(store, log.Logger, worker.WithProber(prober)),
			log.Logger, consumerOpts...),
		pubsub.NewConsumer("deletion",
			pubsub.NewSQSQueue(sqsClient, cfg.AWS.DeleteQueueURL),
			worker.NewDeletion(store, log.Logger),
			log.Logger, consumerOpts...),
		pubsub.NewConsumer("attribute_update",
			pubsub.NewSQSQueue(sqsClient, cfg.AWS.UpdateQueueURL),
			worker.NewAttributeUpdate(store, log.Logger),
			log.Logger, consumerOpts...),
		pubsub.NewConsumer("rejection",
			pubsub.NewSQSQueue(sqsClient, cfg.AWS.DLQURL),
			worker.NewRejection(sender, cfg.Mail.To, log.Logger),
			log.Logger),
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(c *pubsub.Consumer) {
			defer wg.Done()
			_ = c.Run(ctx)
		}(c)
	}

	confirmation := worker.NewConfirmation(feed, sender, cfg.Mail.To, log.Logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = confirmation.Run(ctx)
	}()

	return consumers, nil
}

func publishAction(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Mode != config.ModeAWS {
		return fmt.Errorf("publish requires aws mode")
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	publisher := pubsub.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.AWS.TopicARN)

	var (
		body  []byte
		attrs map[string]string
	)
	if metadataType := c.String("metadata-type"); metadataType != "" {
		body, err = json.Marshal(albumkeep.AttributeUpdateEvent{
			ID:    c.String("update-id"),
			Value: c.String("update-value"),
		})
		attrs = map[string]string{albumkeep.AttrMetadataType: metadataType}
	} else {
		event := albumkeep.MutationEvent{
			Kind:      c.String("kind"),
			Bucket:    c.String("bucket"),
			ObjectKey: c.String("key"),
		}
		eventName := albumkeep.EventNameCreated
		if event.Kind == albumkeep.MutationRemoved {
			eventName = albumkeep.EventNameRemoved
		}
		body, err = json.Marshal(event)
		attrs = map[string]string{albumkeep.AttrEventName: eventName}
	}
	if err != nil {
		return err
	}

	if err := publisher.Publish(ctx, body, attrs); err != nil {
		return err
	}
	log.Info().Msg("Event published")
	return nil
}

// logSender stands in for SES in memory mode: it logs the email instead of
// sending it.
type logSender struct{}

func (logSender) Send(ctx context.Context, recipient, subject, body string) error {
	log.Info().Str("recipient", recipient).Str("subject", subject).Str("body", body).Msg("Email (memory mode)")
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
