package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// ConsumeEvents decodes each message into a SessionEvent before handing it to
// the handler. Messages that fail to decode are skipped, not fatal.
func (c *Consumer) ConsumeEvents(ctx context.Context, handler func(context.Context, SessionEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		var event SessionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			continue
		}

		if err := handler(ctx, event); err != nil {
			return err
		}
	}
}
