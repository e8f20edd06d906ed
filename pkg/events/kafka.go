package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/karaoke-session-system/pkg/logger"
)

// KafkaClient carries change events between server instances. Every instance
// consumes with its own group id so each one sees every event.
type KafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    *logger.Logger
}

func NewKafkaClient(brokers []string, topic string, groupID string, log *logger.Logger) *KafkaClient {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaClient{
		writer: writer,
		reader: reader,
		log:    log,
	}
}

// Publish writes the event keyed by session so a session's events stay in
// one partition and keep their relative order.
func (k *KafkaClient) Publish(ctx context.Context, event ChangeEvent) error {
	messageJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID.String()),
		Value: messageJSON,
		Time:  event.At,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// ConsumeEvents reads until ctx is cancelled, handing each decoded event to
// handler. Undecodable messages are logged and skipped.
func (k *KafkaClient) ConsumeEvents(ctx context.Context, handler func(ChangeEvent) error) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		var event ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			k.log.Warnf("skipping undecodable change event at offset %d: %v", msg.Offset, err)
			continue
		}

		if err := handler(event); err != nil {
			return fmt.Errorf("failed to handle event: %w", err)
		}
	}
}

func (k *KafkaClient) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := k.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
