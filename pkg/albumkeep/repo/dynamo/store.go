// Package dynamo provides a MetadataStore backed by DynamoDB, with a
// change feed read from the table's stream.
package dynamo

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/albumkeep/albumkeep/pkg/albumkeep"
)

// Item attribute names. Metadata attributes live inside a single map-typed
// attribute so that a Put can replace them wholesale in one write.
const (
	attrFileName   = "fileName"
	attrCreatedAt  = "createdAt"
	attrAttributes = "attributes"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store is a DynamoDB implementation of albumkeep.MetadataStore. Writes go
// through UpdateItem so that createdAt is set once with if_not_exists and
// replayed events leave identical items.
type Store struct {
	client    DynamoAPI
	tableName string
}

// NewStore creates a store over the given table.
func NewStore(client DynamoAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Put stores the record, replacing its attribute set wholesale. The item's
// createdAt is preserved across replays. Attributes absent from the
// incoming record do not survive the write; every backend applies the same
// overwrite policy.
func (s *Store) Put(ctx context.Context, record *albumkeep.MetadataRecord) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(record.FileName),
		UpdateExpression: aws.String(
			"SET #createdAt = if_not_exists(#createdAt, :createdAt), #attributes = :attributes"),
		ExpressionAttributeNames: map[string]string{
			"#createdAt":  attrCreatedAt,
			"#attributes": attrAttributes,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":createdAt":  &types.AttributeValueMemberS{Value: createdAtValue(record.CreatedAt)},
			":attributes": attributeMap(record.Attributes),
		},
	})
	if err != nil {
		return &albumkeep.StoreError{Op: "put", Key: record.FileName, Err: err}
	}
	return nil
}

// UpdateAttribute sets a single named attribute inside the attribute map,
// creating the item when it does not exist yet. A nested SET on a missing
// map is invalid, so the write is conditional: first assume the map exists,
// then fall back to creating it, retrying if a concurrent writer wins the
// creation race.
func (s *Store) UpdateAttribute(ctx context.Context, fileName, name, value string) error {
	for {
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key:       itemKey(fileName),
			UpdateExpression: aws.String(
				"SET #attributes.#attrName = :attrValue, #createdAt = if_not_exists(#createdAt, :createdAt)"),
			ConditionExpression: aws.String("attribute_exists(#attributes)"),
			ExpressionAttributeNames: map[string]string{
				"#attributes": attrAttributes,
				"#attrName":   name,
				"#createdAt":  attrCreatedAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":attrValue": &types.AttributeValueMemberS{Value: value},
				":createdAt": &types.AttributeValueMemberS{Value: createdAtValue(time.Time{})},
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionalCheckFailed(err) {
			return &albumkeep.StoreError{Op: "update_attribute", Key: fileName, Err: err}
		}

		_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.tableName),
			Key:       itemKey(fileName),
			UpdateExpression: aws.String(
				"SET #attributes = :attributes, #createdAt = if_not_exists(#createdAt, :createdAt)"),
			ConditionExpression: aws.String("attribute_not_exists(#attributes)"),
			ExpressionAttributeNames: map[string]string{
				"#attributes": attrAttributes,
				"#createdAt":  attrCreatedAt,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":attributes": attributeMap(map[string]string{name: value}),
				":createdAt":  &types.AttributeValueMemberS{Value: createdAtValue(time.Time{})},
			},
		})
		if err == nil {
			return nil
		}
		if !isConditionalCheckFailed(err) {
			return &albumkeep.StoreError{Op: "update_attribute", Key: fileName, Err: err}
		}
	}
}

// Delete removes the item. DynamoDB deletes are idempotent, so an absent
// key is a no-op.
func (s *Store) Delete(ctx context.Context, fileName string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(fileName),
	})
	if err != nil {
		return &albumkeep.StoreError{Op: "delete", Key: fileName, Err: err}
	}
	return nil
}

// Get returns the record for fileName, or albumkeep.ErrRecordNotFound.
func (s *Store) Get(ctx context.Context, fileName string) (*albumkeep.MetadataRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(fileName),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &albumkeep.StoreError{Op: "get", Key: fileName, Err: err}
	}
	if len(out.Item) == 0 {
		return nil, albumkeep.ErrRecordNotFound
	}
	return recordFromItem(out.Item), nil
}

func itemKey(fileName string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrFileName: &types.AttributeValueMemberS{Value: fileName},
	}
}

func attributeMap(attrs map[string]string) *types.AttributeValueMemberM {
	m := make(map[string]types.AttributeValue, len(attrs))
	for name, value := range attrs {
		m[name] = &types.AttributeValueMemberS{Value: value}
	}
	return &types.AttributeValueMemberM{Value: m}
}

func createdAtValue(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.Format(time.RFC3339Nano)
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func recordFromItem(item map[string]types.AttributeValue) *albumkeep.MetadataRecord {
	record := &albumkeep.MetadataRecord{}
	if v, ok := item[attrFileName].(*types.AttributeValueMemberS); ok {
		record.FileName = v.Value
	}
	if v, ok := item[attrCreatedAt].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339Nano, v.Value); err == nil {
			record.CreatedAt = t
		}
	}
	if m, ok := item[attrAttributes].(*types.AttributeValueMemberM); ok {
		for name, value := range m.Value {
			s, ok := value.(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if record.Attributes == nil {
				record.Attributes = make(map[string]string)
			}
			record.Attributes[name] = s.Value
		}
	}
	return record
}
