package report

import (
	"context"

	"evfwd/internal/log"
)

// LogReporter writes every outcome to the structured logger.
type LogReporter struct {
	logger *log.Logger
}

func NewLogReporter(l *log.Logger) *LogReporter {
	if l == nil {
		l = log.GetLogger()
	}
	return &LogReporter{logger: l}
}

func (r *LogReporter) Report(_ context.Context, o Outcome) error {
	fields := []log.Field{
		log.String("record_id", o.RecordID),
		log.String("stage", string(o.Stage)),
		log.String("outcome", o.Label()),
	}
	if o.EventType != "" {
		fields = append(fields, log.String("event_type", o.EventType))
	}
	if o.BatchReference != "" {
		fields = append(fields, log.String("batch_reference", o.BatchReference))
	}
	if o.HTTPStatus != 0 {
		fields = append(fields, log.Int("http_status", o.HTTPStatus))
	}
	if o.Detail != "" {
		fields = append(fields, log.String("detail", o.Detail))
	}
	if o.Accepted() {
		r.logger.Info("record forwarded", fields...)
	} else {
		r.logger.Warn("record not forwarded", fields...)
	}
	return nil
}
