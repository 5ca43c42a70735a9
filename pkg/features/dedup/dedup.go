// Package dedup records which messages were already sent so a retried or
// duplicated invocation does not text the same person twice.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store claims idempotency keys. Claim returns false when key was already claimed.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// BirthdayKey identifies the birthday message for number on date.
func BirthdayKey(number string, date time.Time) string {
	return fmt.Sprintf("birthday:%s:%s", number, date.Format(time.DateOnly))
}

// ReplyKey identifies the reply to one inbound message.
func ReplyKey(messageSid string) string {
	return "reply:" + messageSid
}

// Nop never refuses a claim.
type Nop struct{}

func (Nop) Claim(context.Context, string) (bool, error) { return true, nil }

func (Nop) Release(context.Context, string) error { return nil }

// MemoryStore keeps claims for the life of the process. It only protects
// against duplicates within one warm container.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	claimed map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, claimed: make(map[string]time.Time)}
}

func (m *MemoryStore) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.claimed[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.claimed[key] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, key)
	return nil
}
