package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumkeep/albumkeep/pkg/albumkeep/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeMemory,
		Mail: config.Mail{From: "sender@example.com", To: "user@example.com"},
	}
}

func TestValidate_MemoryMode(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_MissingMailIsFatal(t *testing.T) {
	cfg := validConfig()
	cfg.Mail.From = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Mail.To = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "cloud"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AWSModeRequiresResources(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = config.ModeAWS
	assert.Error(t, cfg.Validate())

	cfg.AWS = config.AWS{
		Region:         "eu-west-1",
		TopicARN:       "arn:aws:sns:eu-west-1:1:images",
		IngestQueueURL: "https://sqs/ingest",
		DeleteQueueURL: "https://sqs/deletion",
		UpdateQueueURL: "https://sqs/update",
		DLQURL:         "https://sqs/dlq",
		TableName:      "ImageTable",
		StreamARN:      "arn:aws:dynamodb:eu-west-1:1:table/ImageTable/stream/1",
	}
	assert.NoError(t, cfg.Validate())
}
