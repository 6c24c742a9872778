// Package config holds the process-wide configuration, read once at
// startup and passed by reference into each component. Nothing here is an
// ambient mutable global; tests construct alternate configurations
// directly.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// Deployment modes.
const (
	ModeMemory = "memory"
	ModeAWS    = "aws"
)

type Config struct {
	Mode     string `env:"PIPELINE_MODE" env-default:"memory"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	OpsPort  string `env:"OPS_PORT" env-default:"8080"`

	Mail  Mail
	AWS   AWS
	Retry Retry
	Dedup Dedup
}

// Mail configures the notification sender. Both addresses are required:
// a worker must fail fast at startup rather than process messages with
// undefined behavior.
type Mail struct {
	From string `env:"SES_EMAIL_FROM"`
	To   string `env:"SES_EMAIL_TO"`
}

// AWS configures the aws deployment mode: SNS topic, SQS queues, DynamoDB
// table and stream.
type AWS struct {
	Region         string `env:"AWS_REGION" env-default:"eu-west-1"`
	TopicARN       string `env:"IMAGE_TOPIC_ARN"`
	IngestQueueURL string `env:"INGEST_QUEUE_URL"`
	DeleteQueueURL string `env:"DELETION_QUEUE_URL"`
	UpdateQueueURL string `env:"UPDATE_QUEUE_URL"`
	DLQURL         string `env:"DEAD_LETTER_QUEUE_URL"`
	TableName      string `env:"IMAGE_TABLE_NAME"`
	StreamARN      string `env:"IMAGE_TABLE_STREAM_ARN"`
}

// Retry bounds redelivery on the ingest path before dead-lettering.
type Retry struct {
	MaxReceiveCount int           `env:"MAX_RECEIVE_COUNT" env-default:"2"`
	Backoff         time.Duration `env:"RETRY_BACKOFF" env-default:"0s"`
}

// Dedup configures optional message de-duplication.
type Dedup struct {
	RedisAddr string        `env:"DEDUP_REDIS_ADDR"`
	TTL       time.Duration `env:"DEDUP_TTL" env-default:"168h"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every value the selected mode requires is present.
func (c *Config) Validate() error {
	if c.Mode != ModeMemory && c.Mode != ModeAWS {
		return fmt.Errorf("unknown pipeline mode %q", c.Mode)
	}
	if c.Mail.From == "" || c.Mail.To == "" {
		return fmt.Errorf("%w: SES_EMAIL_FROM and SES_EMAIL_TO are required", albumkeep.ErrMissingConfig)
	}
	if c.Mode == ModeAWS {
		required := map[string]string{
			"IMAGE_TOPIC_ARN":        c.AWS.TopicARN,
			"INGEST_QUEUE_URL":       c.AWS.IngestQueueURL,
			"DELETION_QUEUE_URL":     c.AWS.DeleteQueueURL,
			"UPDATE_QUEUE_URL":       c.AWS.UpdateQueueURL,
			"DEAD_LETTER_QUEUE_URL":  c.AWS.DLQURL,
			"IMAGE_TABLE_NAME":       c.AWS.TableName,
			"IMAGE_TABLE_STREAM_ARN": c.AWS.StreamARN,
		}
		for name, value := range required {
			if value == "" {
				return fmt.Errorf("%w: %s is required in aws mode", albumkeep.ErrMissingConfig, name)
			}
		}
	}
	return nil
}
