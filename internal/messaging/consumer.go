package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PayloadField is the stream entry field that carries the JSON document.
const PayloadField = "payload"

type Message struct {
	Stream  string
	ID      string
	Payload []byte
	// Redelivered is set for entries reclaimed from another consumer or from
	// an earlier failed attempt.
	Redelivered bool
}

// Handler processes one entry. A nil return acknowledges the entry; any error
// leaves it pending so it is delivered again.
type Handler func(ctx context.Context, msg Message) error

type ConsumerOptions struct {
	Group     string
	Name      string
	Count     int64
	Block     time.Duration
	ClaimIdle time.Duration
}

// Consumer reads streams through a Redis consumer group with at-least-once
// delivery.
type Consumer struct {
	client redis.Cmdable
	opts   ConsumerOptions
	log    zerolog.Logger
}

func NewConsumer(client redis.Cmdable, opts ConsumerOptions, log zerolog.Logger) *Consumer {
	if opts.Count <= 0 {
		opts.Count = 16
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	return &Consumer{client: client, opts: opts, log: log}
}

// EnsureGroup creates the consumer group, and the stream if needed. An
// existing group is left untouched.
func (c *Consumer) EnsureGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", c.opts.Group, stream, err)
	}
	return nil
}

// Run consumes stream until ctx is canceled. Entries are handled one at a
// time in delivery order.
func (c *Consumer) Run(ctx context.Context, stream string, h Handler) error {
	if err := c.EnsureGroup(ctx, stream); err != nil {
		return err
	}

	log := c.log.With().Str("stream", stream).Str("group", c.opts.Group).Logger()
	log.Info().Str("consumer", c.opts.Name).Msg("consumer started")

	var lastClaim time.Time
	for {
		if ctx.Err() != nil {
			log.Info().Msg("consumer stopped")
			return nil
		}

		if time.Since(lastClaim) >= c.opts.ClaimIdle {
			if err := c.Reclaim(ctx, stream, h); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reclaim pending entries failed")
			}
			lastClaim = time.Now()
		}

		n, err := c.Poll(ctx, stream, h)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("read from stream failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if n > 0 {
			log.Debug().Int("entries", n).Msg("batch handled")
		}
	}
}

// Poll reads one batch of new entries, blocking up to the configured Block
// duration, and hands each to h. It returns the number of entries read.
func (c *Consumer) Poll(ctx context.Context, stream string, h Handler) (int, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Name,
		Streams:  []string{stream, ">"},
		Count:    c.opts.Count,
		Block:    c.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xreadgroup %s: %w", stream, err)
	}

	n := 0
	for _, s := range res {
		for _, m := range s.Messages {
			c.dispatch(ctx, toMessage(s.Stream, m, false), h)
			n++
		}
	}
	return n, nil
}

// Reclaim takes over entries that stayed pending longer than ClaimIdle,
// including this consumer's own failed attempts, and hands them to h again.
func (c *Consumer) Reclaim(ctx context.Context, stream string, h Handler) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    c.opts.Group,
			Consumer: c.opts.Name,
			MinIdle:  c.opts.ClaimIdle,
			Start:    start,
			Count:    c.opts.Count,
		}).Result()
		if err != nil {
			return fmt.Errorf("xautoclaim %s: %w", stream, err)
		}
		for _, m := range msgs {
			c.dispatch(ctx, toMessage(stream, m, true), h)
		}
		if next == "0-0" || next == "" || len(msgs) == 0 {
			return nil
		}
		start = next
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg Message, h Handler) {
	log := c.log.With().Str("stream", msg.Stream).Str("entry_id", msg.ID).Logger()

	if err := h(ctx, msg); err != nil {
		log.Warn().Err(err).Bool("redelivered", msg.Redelivered).Msg("entry left pending")
		return
	}
	if err := c.client.XAck(ctx, msg.Stream, c.opts.Group, msg.ID).Err(); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}

func toMessage(stream string, m redis.XMessage, redelivered bool) Message {
	msg := Message{Stream: stream, ID: m.ID, Redelivered: redelivered}
	switch v := m.Values[PayloadField].(type) {
	case string:
		msg.Payload = []byte(v)
	case []byte:
		msg.Payload = v
	}
	return msg
}
