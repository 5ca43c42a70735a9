package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamotypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
)

func TestKeys(t *testing.T) {
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := BirthdayKey("+15551112222", date); got != "birthday:+15551112222:2026-03-14" {
		t.Errorf("Received key: %v", got)
	}
	if got := ReplyKey("SM123"); got != "reply:SM123" {
		t.Errorf("Received key: %v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 4, 1, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }

	if ok, _ := store.Claim(ctx, "k"); !ok {
		t.Fatalf("Expected first claim to succeed")
	}
	if ok, _ := store.Claim(ctx, "k"); ok {
		t.Fatalf("Expected second claim to be refused")
	}

	_ = store.Release(ctx, "k")
	if ok, _ := store.Claim(ctx, "k"); !ok {
		t.Fatalf("Expected claim after release to succeed")
	}

	now = now.Add(2 * time.Hour)
	if ok, _ := store.Claim(ctx, "k"); !ok {
		t.Fatalf("Expected claim after expiry to succeed")
	}
}

type mockDynamo struct {
	items   map[string]bool
	putErr  error
	deleted []string
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	key := in.Item["IdempotencyKey"].(*dynamotypes.AttributeValueMemberS).Value
	if m.items[key] {
		return nil, &dynamotypes.ConditionalCheckFailedException{Message: new(string)}
	}
	if _, ok := in.Item["ExpireOn"].(*dynamotypes.AttributeValueMemberN); !ok {
		return nil, errors.New("ExpireOn missing")
	}
	m.items[key] = true
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	key := in.Key["IdempotencyKey"].(*dynamotypes.AttributeValueMemberS).Value
	delete(m.items, key)
	m.deleted = append(m.deleted, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	ctx := context.Background()
	client := &mockDynamo{items: map[string]bool{}}
	store := &DynamoStore{Client: client, Table: "dedup", TTL: 72 * time.Hour}

	testCases := []struct {
		name     string
		expected bool
	}{
		{name: "first claim", expected: true},
		{name: "duplicate claim", expected: false},
	}
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			ok, err := store.Claim(ctx, "birthday:+15551112222:2026-03-14")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ok != tC.expected {
				t.Errorf("Received claim result: %v is different than expected one: %v", ok, tC.expected)
			}
		})
	}

	if err := store.Release(ctx, "birthday:+15551112222:2026-03-14"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(client.deleted) != 1 {
		t.Errorf("Expected one delete, got %v", client.deleted)
	}

	client.putErr = errors.New("throttled")
	if _, err := store.Claim(ctx, "reply:SM1"); err == nil {
		t.Errorf("Expected store error to be returned")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, 10*time.Second)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "reply:SM1")
	if err != nil || !ok {
		t.Fatalf("Expected first claim to succeed, got %v %v", ok, err)
	}
	if !mr.Exists("dedup:reply:SM1") {
		t.Fatalf("Expected key to exist")
	}
	if mr.TTL("dedup:reply:SM1") <= 0 {
		t.Fatalf("Expected TTL to be set")
	}

	ok, err = store.Claim(ctx, "reply:SM1")
	if err != nil || ok {
		t.Fatalf("Expected duplicate claim to be refused, got %v %v", ok, err)
	}

	if err := store.Release(ctx, "reply:SM1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if mr.Exists("dedup:reply:SM1") {
		t.Fatalf("Expected key to be deleted")
	}

	mr.Close()
	if _, err := store.Claim(ctx, "reply:SM2"); err == nil {
		t.Errorf("Expected error once redis is gone")
	}
}
