// internal/broker/redis.go
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readBlock    = 5 * time.Second
	readBatch    = 32
	claimMinIdle = 30 * time.Second
)

// RedisBus is a Bus over Redis Streams. Every topic is one stream; consumer
// groups map onto stream groups, so ordering is preserved within a stream and
// unacknowledged entries are redelivered via the pending-entries list.
type RedisBus struct {
	client   *redis.Client
	consumer string
}

// NewRedisBus wraps an existing client. The consumer name identifies this
// process inside each group; it defaults to the hostname.
func NewRedisBus(client *redis.Client) *RedisBus {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "consumer"
	}
	return &RedisBus{client: client, consumer: name}
}

// Publish appends the payload to the topic's stream. The partition key rides
// along as a field so consumers can observe per-aggregate ordering.
func (b *RedisBus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", topic, err)
	}
	return nil
}

// Consume joins the group on topic and processes messages until ctx ends.
// Entries are XACKed only after the handler returns nil; failed entries stay
// pending and are reclaimed once their idle time exceeds claimMinIdle.
func (b *RedisBus) Consume(ctx context.Context, topic, group string, handler Handler) error {
	if err := b.ensureGroup(ctx, topic, group); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.reclaimPending(ctx, topic, group, handler)

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumer,
			Streams:  []string{topic, ">"},
			Count:    readBatch,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("broker: read %s group %s: %v", topic, group, err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				b.dispatch(ctx, topic, group, handler, entry)
			}
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, topic, group string, handler Handler, entry redis.XMessage) {
	msg := toMessage(entry)
	if err := handler(ctx, msg); err != nil {
		// No ack: the entry stays in the pending list for redelivery.
		log.Printf("broker: handler failed on %s group %s entry %s: %v", topic, group, entry.ID, err)
		return
	}
	if err := b.client.XAck(ctx, topic, group, entry.ID).Err(); err != nil {
		log.Printf("broker: ack %s group %s entry %s: %v", topic, group, entry.ID, err)
	}
}

// reclaimPending picks up entries another consumer (or a previous run of this
// one) read but never acknowledged.
func (b *RedisBus) reclaimPending(ctx context.Context, topic, group string, handler Handler) {
	entries, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    group,
		Consumer: b.consumer,
		MinIdle:  claimMinIdle,
		Start:    "0",
		Count:    readBatch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() == nil {
			log.Printf("broker: autoclaim %s group %s: %v", topic, group, err)
		}
		return
	}
	for _, entry := range entries {
		b.dispatch(ctx, topic, group, handler, entry)
	}
}

func (b *RedisBus) ensureGroup(ctx context.Context, topic, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, topic, err)
	}
	return nil
}

func toMessage(entry redis.XMessage) Message {
	msg := Message{ID: entry.ID}
	if key, ok := entry.Values["key"].(string); ok {
		msg.Key = key
	}
	switch payload := entry.Values["payload"].(type) {
	case string:
		msg.Payload = []byte(payload)
	case []byte:
		msg.Payload = payload
	}
	return msg
}
