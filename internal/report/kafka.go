package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter publishes outcomes to a topic keyed by record id.
type KafkaWriter struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SplitBrokers turns a comma-separated bootstrap list into addresses.
func SplitBrokers(bootstrap string) []string {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return brokers
}

func NewKafkaWriter(bootstrap string, topic string) *KafkaWriter {
	return &KafkaWriter{writer: &kafka.Writer{
		Addr:                   kafka.TCP(SplitBrokers(bootstrap)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}}
}

// NewKafkaWriterWith is only for tests to inject a fake writer.
func NewKafkaWriterWith(w kafkaMessageWriter) *KafkaWriter {
	return &KafkaWriter{writer: w}
}

func (k *KafkaWriter) Report(ctx context.Context, o Outcome) error {
	b, err := json.Marshal(&o)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(o.RecordID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "outcome", Value: []byte(o.Label())},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

func (k *KafkaWriter) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
