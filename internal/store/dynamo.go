package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements DocumentStore on one DynamoDB table keyed by
// PK (collection name) and SK (document id). Document fields are stored
// as top-level attributes using their dynamodbav tags.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ DocumentStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

var dynamoOps = map[Op]string{
	OpEq: "=",
	OpNe: "<>",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func itemKey(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: collection},
		"SK": &types.AttributeValueMemberS{Value: id},
	}
}

// marshalItem converts doc into an item carrying PK and SK.
func marshalItem(collection, id string, doc any) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	for k, v := range itemKey(collection, id) {
		item[k] = v
	}
	return item, nil
}

func (s *DynamoStore) Get(ctx context.Context, collection, id string, out any) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            itemKey(collection, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", collection, id, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", collection, id, err)
	}
	return true, nil
}

func (s *DynamoStore) Put(ctx context.Context, collection, id string, doc any) error {
	item, err := marshalItem(collection, id, doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", collection, id, err)
	}
	log.Debug().Str("collection", collection).Str("id", id).Msg("Document persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) PutVersioned(ctx context.Context, collection, id string, doc any, version int64) error {
	item, err := marshalItem(collection, id, doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if version <= 1 {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		input.ConditionExpression = aws.String("#v = :prev")
		input.ExpressionAttributeNames = map[string]string{"#v": "version"}
		prev, err := attributevalue.Marshal(version - 1)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{":prev": prev}
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			log.Debug().
				Str("collection", collection).
				Str("id", id).
				Int64("version", version).
				Msg("Conditional put rejected: version conflict")
			return ErrVersionConflict
		}
		return fmt.Errorf("PutItem PK=%s SK=%s version=%d: %w", collection, id, version, err)
	}
	log.Debug().Str("collection", collection).Str("id", id).Int64("version", version).Msg("Versioned document persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       itemKey(collection, id),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s SK=%s: %w", collection, id, err)
	}
	return nil
}

// Query reads the collection partition and filters server-side on one
// attribute. Pagination is followed until the partition is exhausted.
func (s *DynamoStore) Query(ctx context.Context, collection string, f Filter) ([]Document, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	value, err := attributevalue.Marshal(f.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal filter value: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		FilterExpression:       aws.String(fmt.Sprintf("#f %s :v", dynamoOps[f.Op])),
		ExpressionAttributeNames: map[string]string{
			"#f": f.Field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: collection},
			":v":  value,
		},
	}

	var docs []Document
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s filter=%s: %w", collection, f.Field, err)
		}
		for _, item := range result.Items {
			docs = append(docs, dynamoDocument(item))
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return docs, nil
}

func dynamoDocument(item map[string]types.AttributeValue) Document {
	var id string
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		id = sk.Value
	}
	return Document{
		ID: id,
		decode: func(out any) error {
			return attributevalue.UnmarshalMap(item, out)
		},
	}
}
