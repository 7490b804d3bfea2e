package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const StaticTopic = "static"

// StaticSource yields fixed payloads in order, then io.EOF.
type StaticSource struct {
	mu        sync.Mutex
	payloads  [][]byte
	next      int
	committed []int64
}

func NewStaticSource(payloads ...[]byte) *StaticSource {
	return &StaticSource{payloads: payloads}
}

// NewStaticStrings is a convenience for literal records.
func NewStaticStrings(payloads ...string) *StaticSource {
	bs := make([][]byte, len(payloads))
	for i, p := range payloads {
		bs[i] = []byte(p)
	}
	return NewStaticSource(bs...)
}

func (s *StaticSource) Fetch(ctx context.Context) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.payloads) {
		return Message{}, io.EOF
	}
	m := Message{
		Topic:  StaticTopic,
		Offset: int64(s.next),
		Key:    []byte(uuid.NewString()),
		Value:  s.payloads[s.next],
		Time:   time.Now().UTC(),
	}
	s.next++
	return m, nil
}

func (s *StaticSource) Commit(_ context.Context, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

// Committed returns offsets in commit order.
func (s *StaticSource) Committed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

func (s *StaticSource) Close() error { return nil }
