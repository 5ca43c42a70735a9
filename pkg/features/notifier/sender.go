package notifier

import (
	"context"
	"fmt"

	"github.com/pihlajus/bday-wisher/pkg/features/dedup"
	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
)

// DeliveryResult is what the gateway reported for an accepted message.
type DeliveryResult struct {
	MessageID string
	Status    string
}

// Sender delivers one text message. Implementations make exactly one gateway
// call and never retry; failures are *errors.DeliveryError.
type Sender interface {
	Send(ctx context.Context, to, body string) (DeliveryResult, error)
}

// Guarded sends a message at most once per idempotency key.
type Guarded struct {
	Sender Sender
	Store  dedup.Store
}

// SendOnce claims key, then sends. A key that was already claimed yields
// errors.ErrDuplicate without sending. When the store cannot be reached nothing
// is sent. A failed send releases the claim so the message can be sent again.
func (g *Guarded) SendOnce(ctx context.Context, key, to, body string) (DeliveryResult, error) {
	ok, err := g.Store.Claim(ctx, key)
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("dedup store: %w", err)
	}
	if !ok {
		return DeliveryResult{}, fmt.Errorf("%w: %s", pkgerrors.ErrDuplicate, key)
	}

	res, err := g.Sender.Send(ctx, to, body)
	if err != nil {
		if relErr := g.Store.Release(context.WithoutCancel(ctx), key); relErr != nil {
			return res, fmt.Errorf("%w (release: %v)", err, relErr)
		}
		return res, err
	}
	return res, nil
}
