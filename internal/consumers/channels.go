// internal/consumers/channels.go
package consumers

import (
	"context"
	"log"

	"assetflow/internal/broker"
	"assetflow/internal/events"
)

// Channel drains one per-channel notification topic. Actual rendering and
// gateway calls are out of scope; the stub logs what would be delivered and
// acks, which keeps the group offsets moving in every environment.
type Channel struct {
	name  string
	topic string
	group string
}

func NewEmailChannel() *Channel {
	return &Channel{name: "email", topic: events.TopicNotificationsEmail, group: "notification-email-processor"}
}

func NewPushChannel() *Channel {
	return &Channel{name: "push", topic: events.TopicNotificationsPush, group: "notification-push-processor"}
}

func NewSMSChannel() *Channel {
	return &Channel{name: "sms", topic: events.TopicNotificationsSMS, group: "notification-sms-processor"}
}

// Run consumes until ctx is cancelled.
func (c *Channel) Run(ctx context.Context, bus broker.Bus) error {
	return bus.Consume(ctx, c.topic, c.group, c.Handle)
}

func (c *Channel) Handle(_ context.Context, msg broker.Message) error {
	env, err := events.Decode(msg.Payload)
	if err != nil {
		log.Printf("%s: skipping malformed message %s: %v", c.name, msg.ID, err)
		return nil
	}
	log.Printf("%s: would deliver %q to %s <%s> (loan %d)",
		c.name, env.String("title"), env.String("recipientName"), env.String("recipientEmail"), env.AggregateID)
	return nil
}
