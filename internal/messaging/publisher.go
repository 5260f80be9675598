package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client redis.Cmdable
	maxLen int64
}

// NewPublisher returns a publisher that trims every stream it writes to
// roughly maxLen entries. Zero disables trimming.
func NewPublisher(client redis.Cmdable, maxLen int64) *Publisher {
	return &Publisher{client: client, maxLen: maxLen}
}

// Publish appends v, JSON encoded, to stream and returns the entry id.
func (p *Publisher) Publish(ctx context.Context, stream string, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", stream, err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{PayloadField: string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}
