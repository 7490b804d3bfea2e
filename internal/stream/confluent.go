package stream

import (
	"context"
	"strings"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
)

const pollTimeout = 200 * time.Millisecond

// confluentConsumer abstracts *ck.Consumer for testability.
type confluentConsumer interface {
	ReadMessage(timeout time.Duration) (*ck.Message, error)
	CommitOffsets(offsets []ck.TopicPartition) ([]ck.TopicPartition, error)
	Close() error
}

// ConfluentSource reads through librdkafka with manual offset commits.
type ConfluentSource struct {
	consumer confluentConsumer
}

func NewConfluentSource(cfg KafkaConfig) (*ConfluentSource, error) {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"group.id":           cfg.GroupID,
		"client.id":          cfg.ClientID,
		"enable.auto.commit": false,
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return nil, errors.Wrap(err, "consumer")
	}
	if err := c.SubscribeTopics([]string{cfg.Topic}, nil); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "subscribe")
	}
	return &ConfluentSource{consumer: c}, nil
}

// NewConfluentSourceWith is only for tests to inject a fake consumer.
func NewConfluentSourceWith(c confluentConsumer) *ConfluentSource {
	return &ConfluentSource{consumer: c}
}

func (s *ConfluentSource) Fetch(ctx context.Context) (Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		m, err := s.consumer.ReadMessage(pollTimeout)
		if err != nil {
			var kerr ck.Error
			if errors.As(err, &kerr) && kerr.IsTimeout() {
				continue
			}
			return Message{}, errors.Wrap(err, "confluent read")
		}
		var topic string
		if m.TopicPartition.Topic != nil {
			topic = *m.TopicPartition.Topic
		}
		return Message{
			Topic:     topic,
			Partition: int(m.TopicPartition.Partition),
			Offset:    int64(m.TopicPartition.Offset),
			Key:       m.Key,
			Value:     m.Value,
			Time:      m.Timestamp,
		}, nil
	}
}

// Commit stores the next offset to read for each message's partition.
func (s *ConfluentSource) Commit(_ context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tps := make([]ck.TopicPartition, len(msgs))
	for i, m := range msgs {
		topic := m.Topic
		tps[i] = ck.TopicPartition{
			Topic:     &topic,
			Partition: int32(m.Partition),
			Offset:    ck.Offset(m.Offset + 1),
		}
	}
	committed, err := s.consumer.CommitOffsets(tps)
	if err != nil {
		return errors.Wrap(err, "confluent commit")
	}
	for _, tp := range committed {
		if tp.Error != nil {
			topic := ""
			if tp.Topic != nil {
				topic = *tp.Topic
			}
			return errors.Wrapf(tp.Error, "confluent commit %s/%d", topic, tp.Partition)
		}
	}
	return nil
}

func (s *ConfluentSource) Close() error { return s.consumer.Close() }
