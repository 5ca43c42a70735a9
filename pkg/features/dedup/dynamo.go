package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type DynamoApiClient interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps claims in a table keyed by IdempotencyKey. ExpireOn is
// meant to be the table's TTL attribute.
type DynamoStore struct {
	Client DynamoApiClient
	Table  string
	TTL    time.Duration
	Now    func() time.Time
}

func (s *DynamoStore) Claim(ctx context.Context, key string) (bool, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	claimedAt := now()

	_, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item: map[string]dynamotypes.AttributeValue{
			"IdempotencyKey": &dynamotypes.AttributeValueMemberS{Value: key},
			"ClaimedAt":      &dynamotypes.AttributeValueMemberS{Value: claimedAt.UTC().Format(time.RFC3339)},
			"ExpireOn":       &dynamotypes.AttributeValueMemberN{Value: fmt.Sprint(claimedAt.Add(s.TTL).Unix())},
		},
		ConditionExpression: aws.String("attribute_not_exists(IdempotencyKey) OR ExpireOn < :now"),
		ExpressionAttributeValues: map[string]dynamotypes.AttributeValue{
			":now": &dynamotypes.AttributeValueMemberN{Value: fmt.Sprint(claimedAt.Unix())},
		},
	})

	var conditionFailed *dynamotypes.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoStore) Release(ctx context.Context, key string) error {
	if _, err := s.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table),
		Key: map[string]dynamotypes.AttributeValue{
			"IdempotencyKey": &dynamotypes.AttributeValueMemberS{Value: key},
		},
	}); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
