package chathub

import (
	"campusskill/backend/internal/models"
	"context"
	"errors"
)

// Bus carries envelopes to every hub instance, including the publisher.
// storage.RedisBus implements it for multi-instance deployments.
type Bus interface {
	Publish(ctx context.Context, env models.Envelope) error
	Subscribe(ctx context.Context) (<-chan models.Envelope, error)
}

// ErrBusFull is returned when a local delivery queue has no room. Relay is
// best-effort, so callers log and move on.
var ErrBusFull = errors.New("hub bus is full")

// LocalBus is the single-instance Bus: published envelopes go straight to the
// local subscriber.
type LocalBus struct {
	out chan models.Envelope
}

func NewLocalBus(buffer int) *LocalBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &LocalBus{out: make(chan models.Envelope, buffer)}
}

func (b *LocalBus) Publish(ctx context.Context, env models.Envelope) error {
	select {
	case b.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBusFull
	}
}

// Subscribe returns the delivery channel. There is one subscriber per LocalBus.
func (b *LocalBus) Subscribe(context.Context) (<-chan models.Envelope, error) {
	return b.out, nil
}
