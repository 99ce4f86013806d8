package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/referral-onboarding/internal/domain"
)

// ItemAPI is the subset of *dynamodb.Client used by the repos.
type ItemAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// AttributionRepo stores one referral attribution per visitor.
// PK: slot_key. expires_at is the table's TTL attribute.
type AttributionRepo struct {
	client    ItemAPI
	tableName string
}

func NewAttributionRepo(client ItemAPI, tableName string) *AttributionRepo {
	return &AttributionRepo{client: client, tableName: tableName}
}

func (r *AttributionRepo) Save(ctx context.Context, rec *domain.AttributionRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal attribution: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put attribution: %w", err)
	}
	return nil
}

func (r *AttributionRepo) Load(ctx context.Context, key string) (*domain.AttributionRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("slot_key", key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get attribution: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("attribution not found: %w", domain.ErrNotFound)
	}
	var rec domain.AttributionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal attribution: %w", err)
	}
	return &rec, nil
}

func (r *AttributionRepo) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("slot_key", key),
	})
	if err != nil {
		return fmt.Errorf("delete attribution: %w", err)
	}
	return nil
}
