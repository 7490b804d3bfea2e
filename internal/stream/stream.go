// Package stream adapts message queues to the pipeline's fetch/commit loop.
package stream

import (
	"context"
	"fmt"
	"time"
)

// Message is one raw record pulled from a source.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// ID identifies the record for reporting and dead-lettering.
func (m Message) ID() string {
	return fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
}

// Source yields messages until Fetch returns io.EOF or the context ends.
// Commit marks messages as processed; it is called after their outcome has
// been reported.
type Source interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msgs ...Message) error
	Close() error
}
