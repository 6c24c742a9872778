package dynamo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// StreamsAPI is the subset of the DynamoDB Streams client the feed uses.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

// Feed reads insert entries from a table's DynamoDB stream. It polls every
// open shard from its latest position; only records created after the feed
// starts flow through it.
type Feed struct {
	client    StreamsAPI
	streamARN string
	interval  time.Duration

	iterators map[string]*string
	closed    map[string]bool
	buffer    []*albumkeep.ChangeEntry
}

// NewFeed creates a feed over the given stream ARN.
func NewFeed(client StreamsAPI, streamARN string) *Feed {
	return &Feed{
		client:    client,
		streamARN: streamARN,
		interval:  time.Second,
		iterators: make(map[string]*string),
		closed:    make(map[string]bool),
	}
}

// Next blocks until an insert entry is available or ctx is done.
func (f *Feed) Next(ctx context.Context) (*albumkeep.ChangeEntry, error) {
	for {
		if len(f.buffer) > 0 {
			entry := f.buffer[0]
			f.buffer = f.buffer[1:]
			return entry, nil
		}
		if err := f.poll(ctx); err != nil {
			return nil, err
		}
		if len(f.buffer) > 0 {
			continue
		}
		select {
		case <-time.After(f.interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (f *Feed) poll(ctx context.Context) error {
	if err := f.refreshShards(ctx); err != nil {
		return err
	}
	for shardID, iterator := range f.iterators {
		out, err := f.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: iterator,
		})
		if err != nil {
			return err
		}
		for _, record := range out.Records {
			if entry := entryFromStreamRecord(record); entry != nil {
				f.buffer = append(f.buffer, entry)
			}
		}
		if out.NextShardIterator == nil {
			delete(f.iterators, shardID)
			f.closed[shardID] = true
			continue
		}
		f.iterators[shardID] = out.NextShardIterator
	}
	return nil
}

func (f *Feed) refreshShards(ctx context.Context) error {
	out, err := f.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(f.streamARN),
	})
	if err != nil {
		return err
	}
	for _, shard := range out.StreamDescription.Shards {
		shardID := aws.ToString(shard.ShardId)
		if f.closed[shardID] {
			continue
		}
		if _, ok := f.iterators[shardID]; ok {
			continue
		}
		iter, err := f.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         aws.String(f.streamARN),
			ShardId:           shard.ShardId,
			ShardIteratorType: streamtypes.ShardIteratorTypeLatest,
		})
		if err != nil {
			return err
		}
		f.iterators[shardID] = iter.ShardIterator
	}
	return nil
}

func entryFromStreamRecord(record streamtypes.Record) *albumkeep.ChangeEntry {
	if record.EventName != streamtypes.OperationTypeInsert {
		return nil
	}
	if record.Dynamodb == nil || record.Dynamodb.NewImage == nil {
		return nil
	}
	image := record.Dynamodb.NewImage
	result := &albumkeep.MetadataRecord{}
	if v, ok := image[attrFileName].(*streamtypes.AttributeValueMemberS); ok {
		result.FileName = v.Value
	}
	if v, ok := image[attrCreatedAt].(*streamtypes.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339Nano, v.Value); err == nil {
			result.CreatedAt = t
		}
	}
	if m, ok := image[attrAttributes].(*streamtypes.AttributeValueMemberM); ok {
		for name, value := range m.Value {
			s, ok := value.(*streamtypes.AttributeValueMemberS)
			if !ok {
				continue
			}
			if result.Attributes == nil {
				result.Attributes = make(map[string]string)
			}
			result.Attributes[name] = s.Value
		}
	}
	if result.FileName == "" {
		return nil
	}
	return &albumkeep.ChangeEntry{Kind: albumkeep.ChangeInsert, Record: result}
}
