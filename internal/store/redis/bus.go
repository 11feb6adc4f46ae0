package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"binarysignal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// SignalChannel is the PubSub channel carrying outbound signal and hold messages.
const SignalChannel = "pub:signal"

// SignalBus republishes gateway messages so other processes can follow the
// signal stream without holding a WebSocket.
type SignalBus struct {
	client  *goredis.Client
	channel string
}

// NewSignalBus creates a bus on SignalChannel.
func NewSignalBus(client *goredis.Client) *SignalBus {
	return &SignalBus{client: client, channel: SignalChannel}
}

// Publish sends msg to the channel.
func (b *SignalBus) Publish(ctx context.Context, msg model.Message) error {
	if err := b.client.Publish(ctx, b.channel, msg.JSON()).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe delivers every message on the channel to handler.
// Blocks until ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, handler func(model.Message)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := decodeMessage([]byte(msg.Payload))
			if err != nil {
				log.Printf("[signal-bus] %v", err)
				continue
			}
			handler(m)
		}
	}
}

func decodeMessage(payload []byte) (model.Message, error) {
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch raw.Type {
	case model.MsgSignal:
		var s model.Signal
		if err := json.Unmarshal(raw.Data, &s); err != nil {
			return model.Message{}, fmt.Errorf("decode signal: %w", err)
		}
		return model.SignalMessage(s), nil
	case model.MsgHold:
		var h model.HoldRecord
		if err := json.Unmarshal(raw.Data, &h); err != nil {
			return model.Message{}, fmt.Errorf("decode hold: %w", err)
		}
		return model.HoldMessage(h), nil
	default:
		return model.Message{}, fmt.Errorf("unknown message type %q", raw.Type)
	}
}
