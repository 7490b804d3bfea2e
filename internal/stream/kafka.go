package stream

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// kafkaReader abstracts kafka.Reader for testability.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads a topic as part of a consumer group.
type KafkaSource struct {
	reader kafkaReader
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

func NewKafkaSource(cfg KafkaConfig) *KafkaSource {
	return &KafkaSource{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		Dialer: &kafka.Dialer{
			ClientID: cfg.ClientID,
			Timeout:  10 * time.Second,
		},
	})}
}

// NewKafkaSourceWith is only for tests to inject a fake reader.
func NewKafkaSourceWith(r kafkaReader) *KafkaSource {
	return &KafkaSource{reader: r}
}

func (s *KafkaSource) Fetch(ctx context.Context) (Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		return Message{}, errors.Wrap(err, "kafka fetch")
	}
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}, nil
}

func (s *KafkaSource) Commit(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	km := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		km[i] = kafka.Message{Topic: m.Topic, Partition: m.Partition, Offset: m.Offset}
	}
	return errors.Wrap(s.reader.CommitMessages(ctx, km...), "kafka commit")
}

func (s *KafkaSource) Close() error { return s.reader.Close() }
