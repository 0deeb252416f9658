// Package kafka publishes notification payloads to a Kafka topic.
package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"finix/internal/notify"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer MessageWriter
}

var _ notify.Sink = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

// NewPublisherWithWriter uses an existing writer.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Send writes p as JSON keyed by its event kind.
func (p *Publisher) Send(ctx context.Context, payload notify.Payload) error {
	data, err := payload.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.Kind),
		Value: data,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(payload.Severity)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
