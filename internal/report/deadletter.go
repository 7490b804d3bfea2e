package report

import (
	"context"

	"evfwd/internal/deadletter"
)

// DeadLetterWriter stores the payload of every record that was not accepted.
type DeadLetterWriter struct {
	store deadletter.Store
}

func NewDeadLetterWriter(s deadletter.Store) *DeadLetterWriter {
	return &DeadLetterWriter{store: s}
}

func (w *DeadLetterWriter) Report(_ context.Context, o Outcome) error {
	if o.Accepted() {
		return nil
	}
	return w.store.Put(o.RecordID, deadletter.Entry{
		Stage:   string(o.Stage),
		Kind:    o.Label(),
		Reason:  o.Detail,
		Topic:   o.Topic,
		Key:     o.Key,
		Payload: o.Payload,
		At:      o.At,
	})
}
